// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockClient implements Client against AWS Bedrock's InvokeModel API.
// It speaks the request/response shape of whichever model family the
// configured model ID belongs to (Anthropic Claude or Amazon Titan); other
// families are rejected at construction time since this client only knows
// how to build and parse those two bodies.
type BedrockClient struct {
	client *bedrockruntime.Client
	model  string
	family string
}

// NewBedrockClient loads the default AWS config for region and returns a
// Client that invokes model on every Generate/Stream call.
func NewBedrockClient(ctx context.Context, region, model string) (*BedrockClient, error) {
	family := bedrockModelFamily(model)
	if family == "" {
		return nil, fmt.Errorf("llmclient: unsupported bedrock model family for %q", model)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("llmclient: load aws config: %w", err)
	}

	return &BedrockClient{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  model,
		family: family,
	}, nil
}

// Generate implements Client.
func (b *BedrockClient) Generate(ctx context.Context, req Request) (Response, error) {
	body, err := b.buildRequestBody(req)
	if err != nil {
		return Response{}, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("llmclient: marshal bedrock request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return Response{}, fmt.Errorf("llmclient: bedrock invoke: %w", err)
	}

	return b.parseResponseBody(out.Body)
}

// Stream implements Client by delivering the whole response as one chunk;
// Bedrock's InvokeModel API (as opposed to InvokeModelWithResponseStream)
// has no partial-delivery mode to forward incrementally.
func (b *BedrockClient) Stream(ctx context.Context, req Request, handler func(Chunk)) (Response, error) {
	resp, err := b.Generate(ctx, req)
	if err != nil {
		return Response{}, err
	}
	handler(Chunk{Text: resp.Text, Done: true})
	return resp, nil
}

func (b *BedrockClient) buildRequestBody(req Request) (map[string]any, error) {
	maxTokens := intOption(req.Options, "max_tokens", 1024)
	temperature := floatOption(req.Options, "temperature", 0.7)

	switch b.family {
	case "anthropic":
		return map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       temperature,
			"messages": []map[string]string{
				{"role": "user", "content": req.Prompt},
			},
		}, nil
	case "amazon":
		return map[string]any{
			"inputText": req.Prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens,
				"temperature":   temperature,
				"topP":          0.9,
			},
		}, nil
	default:
		return nil, fmt.Errorf("llmclient: unsupported bedrock model family %q", b.family)
	}
}

func (b *BedrockClient) parseResponseBody(body []byte) (Response, error) {
	switch b.family {
	case "anthropic":
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return Response{}, fmt.Errorf("llmclient: unmarshal anthropic response: %w", err)
		}
		if len(resp.Content) == 0 {
			return Response{}, nil
		}
		return Response{Text: resp.Content[0].Text}, nil
	case "amazon":
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return Response{}, fmt.Errorf("llmclient: unmarshal titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return Response{}, nil
		}
		return Response{Text: resp.Results[0].OutputText}, nil
	default:
		return Response{}, fmt.Errorf("llmclient: unsupported bedrock model family %q", b.family)
	}
}

// bedrockModelFamily extracts the provider family from a Bedrock model or
// inference-profile ID (e.g. "anthropic.claude-3-5-sonnet-20240620-v1:0" or
// "us.anthropic.claude-sonnet-4-5-20250929-v1:0").
func bedrockModelFamily(modelID string) string {
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}

	switch segments[0] {
	case "us", "eu", "apac", "global":
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return ""
	}

	switch segments[0] {
	case "anthropic", "amazon":
		return segments[0]
	default:
		return ""
	}
}

func intOption(opts map[string]any, key string, def int) int {
	if v, ok := opts[key]; ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return def
}

func floatOption(opts map[string]any, key string, def float64) float64 {
	if v, ok := opts[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}
