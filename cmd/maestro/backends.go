// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"os"

	"maestro/platform/bypass"
	"maestro/platform/contract"
	"maestro/platform/conversation"
	"maestro/platform/llmclient"
	"maestro/platform/shared/logger"
)

var backendLog = logger.New("cmd.maestro.backends")

// llmProvider selects the persona/discussion generation backend from
// LLM_PROVIDER: "bedrock" invokes AWS Bedrock using LLM_BEDROCK_REGION and
// LLM_BEDROCK_MODEL, anything else (including unset) falls back to a canned
// client so the binary runs without cloud credentials configured.
func llmProvider(ctx context.Context) llmclient.Client {
	if os.Getenv("LLM_PROVIDER") != "bedrock" {
		return llmclient.NewCannedClient(llmclient.Response{Text: "acknowledged"})
	}

	region := os.Getenv("LLM_BEDROCK_REGION")
	model := os.Getenv("LLM_BEDROCK_MODEL")
	client, err := llmclient.NewBedrockClient(ctx, region, model)
	if err != nil {
		backendLog.Warn("", "", "falling back to canned llm client", map[string]any{"error": err.Error()})
		return llmclient.NewCannedClient(llmclient.Response{Text: "acknowledged"})
	}
	return client
}

// contractRegistry selects the Contract Registry's persistence layer
// from the environment: CONTRACT_POSTGRES_DSN and CONTRACT_MYSQL_DSN
// name the two interchangeable SQL-backed Store implementations;
// neither set falls back to the in-memory registry.
func contractRegistry() *contract.Registry {
	if dsn := os.Getenv("CONTRACT_POSTGRES_DSN"); dsn != "" {
		store, err := contract.NewPostgresStore(dsn)
		if err == nil {
			var registry *contract.Registry
			registry, err = contract.NewWithStore(store)
			if err == nil {
				return registry
			}
		}
		backendLog.Warn("", "", "falling back to in-memory contract registry", map[string]any{"error": err.Error()})
		return contract.New()
	}

	if dsn := os.Getenv("CONTRACT_MYSQL_DSN"); dsn != "" {
		store, err := contract.NewMySQLStore(dsn)
		if err == nil {
			var registry *contract.Registry
			registry, err = contract.NewWithStore(store)
			if err == nil {
				return registry
			}
		}
		backendLog.Warn("", "", "falling back to in-memory contract registry", map[string]any{"error": err.Error()})
		return contract.New()
	}

	return contract.New()
}

// bypassStore selects the Bypass Manager's persistence layer from
// BYPASS_POSTGRES_DSN, falling back to the in-memory store.
func bypassStore() bypass.Store {
	if dsn := os.Getenv("BYPASS_POSTGRES_DSN"); dsn != "" {
		store, err := bypass.NewPostgresStore(dsn)
		if err == nil {
			return store
		}
		backendLog.Warn("", "", "falling back to in-memory bypass store", map[string]any{"error": err.Error()})
	}
	return bypass.NewMemoryStore()
}

// conversationStore selects the Conversation Store's durable mirror
// from the environment: CONVERSATION_MONGO_URI picks the document-store
// mirror, CONVERSATION_JSONL_PATH picks the flat-file mirror; neither
// set keeps the store in-memory only.
func conversationStore() *conversation.Store {
	if uri := os.Getenv("CONVERSATION_MONGO_URI"); uri != "" {
		mirror, err := conversation.NewMongoMirror(context.Background(), uri, "maestro", "conversation_messages")
		if err == nil {
			return conversation.NewWithMirror(mirror)
		}
		backendLog.Warn("", "", "falling back to in-memory conversation store", map[string]any{"error": err.Error()})
	} else if path := os.Getenv("CONVERSATION_JSONL_PATH"); path != "" {
		mirror, err := conversation.NewJSONLMirror(path)
		if err == nil {
			return conversation.NewWithMirror(mirror)
		}
		backendLog.Warn("", "", "falling back to in-memory conversation store", map[string]any{"error": err.Error()})
	}
	return conversation.New()
}
