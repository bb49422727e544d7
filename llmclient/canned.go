// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llmclient

import (
	"context"
	"fmt"
	"sync"
)

// CannedClient is a deterministic fake Client for tests: it returns a
// fixed response for a given prompt, or a default response when no exact
// match is registered, and records every call it receives so tests can
// assert on ordering.
type CannedClient struct {
	mu        sync.Mutex
	responses map[string]Response
	def       Response
	calls     []Request
}

// NewCannedClient returns a CannedClient whose default response is def.
func NewCannedClient(def Response) *CannedClient {
	return &CannedClient{
		responses: make(map[string]Response),
		def:       def,
	}
}

// WithResponse registers an exact-match response for prompt.
func (c *CannedClient) WithResponse(prompt string, resp Response) *CannedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[prompt] = resp
	return c
}

// Generate implements Client.
func (c *CannedClient) Generate(_ context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if resp, ok := c.responses[req.Prompt]; ok {
		return resp, nil
	}
	return c.def, nil
}

// Stream implements Client by delivering the whole response as one chunk.
func (c *CannedClient) Stream(ctx context.Context, req Request, handler func(Chunk)) (Response, error) {
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return Response{}, err
	}
	handler(Chunk{Text: resp.Text, Done: true})
	return resp, nil
}

// Calls returns the requests received so far, in call order.
func (c *CannedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Generate/Stream calls received.
func (c *CannedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *CannedClient) String() string {
	return fmt.Sprintf("CannedClient(calls=%d)", c.CallCount())
}
