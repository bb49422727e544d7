// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the execution manifest and runtime settings for
// the orchestrator: the workflow/phase manifest (YAML) and the
// environment-variable settings that tune node timeouts, remediation,
// and bypass alerting. The policy and bypass threshold file is loaded
// by the policy package, not here.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	maerr "maestro/platform/shared/errors"
)

// Settings holds the environment-variable-driven runtime configuration
// named in the orchestrator's operating contract.
type Settings struct {
	EnginePath            string
	TemplatesPath         string
	JWTSecretKey          string
	BypassAlertThreshold  float64
	MaxRemediationRounds  int
	DefaultNodeTimeout    time.Duration
}

const (
	defaultBypassAlertThreshold = 0.2
	defaultMaxRemediationRounds = 3
	defaultNodeTimeoutSeconds   = 300
)

// LoadSettings reads runtime settings from the environment, applying the
// orchestrator's documented defaults for anything unset. If
// JWT_SECRET_KEY names an AWS Secrets Manager ARN
// (arn:aws:secretsmanager:...), it is resolved via resolver when one is
// supplied; resolver may be nil for local/dev use, in which case the raw
// env value is used as-is.
func LoadSettings(ctx context.Context, resolver SecretsResolver) (Settings, error) {
	s := Settings{
		EnginePath:           getenvDefault("MAESTRO_ENGINE_PATH", "./manifest.yaml"),
		TemplatesPath:        getenvDefault("MAESTRO_TEMPLATES_PATH", "./templates"),
		JWTSecretKey:         os.Getenv("JWT_SECRET_KEY"),
		BypassAlertThreshold: defaultBypassAlertThreshold,
		MaxRemediationRounds: defaultMaxRemediationRounds,
		DefaultNodeTimeout:   defaultNodeTimeoutSeconds * time.Second,
	}

	if v := os.Getenv("BYPASS_ALERT_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Settings{}, maerr.Wrap(maerr.KindConfig, err, fmt.Sprintf("invalid BYPASS_ALERT_THRESHOLD %q", v))
		}
		s.BypassAlertThreshold = f
	}

	if v := os.Getenv("MAX_REMEDIATION_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, maerr.Wrap(maerr.KindConfig, err, fmt.Sprintf("invalid MAX_REMEDIATION_ITERATIONS %q", v))
		}
		s.MaxRemediationRounds = n
	}

	if v := os.Getenv("DEFAULT_NODE_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, maerr.Wrap(maerr.KindConfig, err, fmt.Sprintf("invalid DEFAULT_NODE_TIMEOUT_SECONDS %q", v))
		}
		s.DefaultNodeTimeout = time.Duration(n) * time.Second
	}

	if resolver != nil && strings.HasPrefix(s.JWTSecretKey, "arn:aws:secretsmanager:") {
		secret, err := resolver.GetSecret(ctx, s.JWTSecretKey)
		if err != nil {
			return Settings{}, maerr.Wrap(maerr.KindConfig, err, "failed to resolve JWT_SECRET_KEY")
		}
		if v, ok := secret["value"]; ok {
			s.JWTSecretKey = v
		} else if v, ok := secret["jwt_secret_key"]; ok {
			s.JWTSecretKey = v
		}
	}

	return s, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SecretsResolver resolves a secret ARN to its key/value contents.
// Implemented by SecretsManagerResolver for AWS deployments; nil in tests.
type SecretsResolver interface {
	GetSecret(ctx context.Context, secretARN string) (map[string]string, error)
}
