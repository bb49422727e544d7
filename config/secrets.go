// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// SecretsManagerResolver resolves secret ARNs via AWS Secrets Manager,
// caching results for a configurable TTL so a hot config reload doesn't
// re-fetch on every call.
type SecretsManagerResolver struct {
	client *secretsmanager.Client
	cache  map[string]cacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	log    *logger.Logger
}

type cacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// NewSecretsManagerResolver loads the default AWS config for the given
// region (empty string uses the SDK's own resolution chain) and returns
// a resolver caching secrets for ttl (5 minutes if ttl <= 0).
func NewSecretsManagerResolver(ctx context.Context, region string, ttl time.Duration) (*SecretsManagerResolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, maerr.Wrap(maerr.KindConfig, err, "failed to load AWS config")
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &SecretsManagerResolver{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]cacheEntry),
		ttl:    ttl,
		log:    logger.New("config.secrets"),
	}, nil
}

// GetSecret fetches secretARN, parsing its string value as a JSON object
// of string fields. A secret that is not valid JSON is treated as a
// single opaque value under the "value" key.
func (r *SecretsManagerResolver) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	r.mu.RLock()
	entry, ok := r.cache[secretARN]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, maerr.Wrap(maerr.KindConfig, err, "failed to fetch secret")
	}
	if out.SecretString == nil {
		return nil, maerr.New(maerr.KindConfig, "secret has no string value")
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		fields = map[string]string{"value": *out.SecretString}
	}

	r.mu.Lock()
	r.cache[secretARN] = cacheEntry{value: fields, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	r.log.Info("", "", "resolved secret", map[string]any{"secret_arn": maskARN(secretARN)})
	return fields, nil
}

func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return arn[:12] + "..." + arn[len(arn)-4:]
}
