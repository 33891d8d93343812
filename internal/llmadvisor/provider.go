// Package llmadvisor implements the supervisor daemon's LLM call: given a
// sanitized tool-call envelope, ask a provider for a verdict. The prompt
// itself is an external collaborator's concern (spec Non-goals) — this
// package owns only the request/response envelope and the HTTP plumbing,
// grounded on orchestrator/llm/anthropic/provider.go's HTTPClient interface
// and request/response shape, trimmed to the single advisory operation.
package llmadvisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"permgate/internal/decision"
	"permgate/internal/pgerr"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
	defaultTimeout    = 30 * time.Second
	defaultMaxTokens  = 512
)

// HTTPClient is the interface Provider depends on, so tests can substitute
// a fake transport without a real network call.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PromptBuilder renders an AdviceRequest into the model's user message. The
// default builder is intentionally minimal; the actual prompt text is an
// external collaborator's concern per the Non-goals.
type PromptBuilder func(req AdviceRequest) string

// Config configures a Provider.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	PromptBuilder PromptBuilder
}

// AdviceRequest is the sanitized tool-call envelope handed to the LLM.
type AdviceRequest struct {
	ToolName        string
	ToolInput       string
	Role            string
	FilePath        string
	TaskDescription string
	Cwd             string
}

// AdviceResponse is the model's answer, already validated as one of the
// three verdicts.
type AdviceResponse struct {
	Verdict    decision.Verdict
	Confidence float64
	Reason     string
}

// Provider calls an Anthropic-compatible completion endpoint for Tier 3
// advice.
type Provider struct {
	apiKey        string
	baseURL       string
	apiVersion    string
	model         string
	timeout       time.Duration
	client        HTTPClient
	promptBuilder PromptBuilder
	healthy       bool
	mu            sync.RWMutex
}

func defaultPromptBuilder(req AdviceRequest) string {
	return fmt.Sprintf(
		"tool=%s role=%s file=%s task=%s cwd=%s input=%s",
		req.ToolName, req.Role, req.FilePath, req.TaskDescription, req.Cwd, req.ToolInput,
	)
}

// NewProvider builds a Provider; APIKey and Model are required.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, pgerr.New(pgerr.Supervisor, "llm advisor requires an API key")
	}
	if cfg.Model == "" {
		return nil, pgerr.New(pgerr.Supervisor, "llm advisor requires a model")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PromptBuilder == nil {
		cfg.PromptBuilder = defaultPromptBuilder
	}

	return &Provider{
		apiKey:        cfg.APIKey,
		baseURL:       cfg.BaseURL,
		apiVersion:    defaultAPIVersion,
		model:         cfg.Model,
		timeout:       cfg.Timeout,
		client:        &http.Client{Timeout: cfg.Timeout},
		promptBuilder: cfg.PromptBuilder,
		healthy:       true,
	}, nil
}

// IsHealthy reports whether the last call succeeded.
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	p.healthy = healthy
	p.mu.Unlock()
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	System    string              `json:"system,omitempty"`
	Messages  []anthropicMessage  `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

const systemPrompt = `You are a permission supervisor for an AI coding agent. ` +
	`Respond with a single JSON object: {"verdict":"allow|deny|ask","confidence":0.0-1.0,"reason":"..."}.`

// Advise sends req to the model and parses its JSON verdict. A malformed or
// missing verdict in the model's response is treated as an API error, not
// silently mapped to a default verdict — the cascade must fall through to
// Tier 4 rather than trust a guess.
func (p *Provider) Advise(ctx context.Context, req AdviceRequest) (*AdviceResponse, error) {
	apiReq := anthropicRequest{
		Model:     p.model,
		MaxTokens: defaultMaxTokens,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: p.promptBuilder(req)},
		},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Serialization, "marshal llm advisor request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Supervisor, "build llm advisor request", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, pgerr.Wrap(pgerr.Supervisor, "llm advisor request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Supervisor, "read llm advisor response", err)
	}
	if resp.StatusCode != http.StatusOK {
		p.setHealthy(resp.StatusCode < 500)
		return nil, pgerr.New(pgerr.Supervisor, "llm advisor returned non-200").
			WithContext("status", resp.StatusCode).WithContext("body", string(respBody))
	}
	p.setHealthy(true)

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, pgerr.Wrap(pgerr.Serialization, "parse llm advisor response envelope", err)
	}
	if len(apiResp.Content) == 0 {
		return nil, pgerr.New(pgerr.Supervisor, "llm advisor response had no content blocks")
	}

	var advice struct {
		Verdict    string  `json:"verdict"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(apiResp.Content[0].Text), &advice); err != nil {
		return nil, pgerr.Wrap(pgerr.Serialization, "parse llm advisor verdict json", err)
	}
	v := decision.Verdict(advice.Verdict)
	if !v.Valid() {
		return nil, pgerr.New(pgerr.Supervisor, "llm advisor returned an invalid verdict").
			WithContext("verdict", advice.Verdict)
	}

	return &AdviceResponse{Verdict: v, Confidence: advice.Confidence, Reason: advice.Reason}, nil
}
