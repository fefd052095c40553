package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/talgya/village-mind/internal/memory"
	"github.com/talgya/village-mind/internal/phi"
)

const (
	defaultAPIURL = "https://api.anthropic.com/v1/messages"
	apiVersion    = "2023-06-01"
	defaultModel  = "claude-haiku-4-5-20251001"
)

// AnthropicProvider generates lines with the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAPIURL points the provider at a different endpoint.
func WithAPIURL(url string) AnthropicOption {
	return func(p *AnthropicProvider) { p.apiURL = url }
}

// WithModel selects the model.
func WithModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithRateLimit caps calls per minute.
func WithRateLimit(perMinute int) AnthropicOption {
	return func(p *AnthropicProvider) {
		if perMinute > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
		}
	}
}

// NewAnthropicProvider creates a remote provider.
// Returns nil if apiKey is empty (remote generation disabled).
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	if apiKey == "" {
		return nil
	}
	p := &AnthropicProvider{
		apiKey: apiKey,
		apiURL: defaultAPIURL,
		model:  defaultModel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(20.0/60), 20), // Conservative rate limit
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Enabled returns true if the provider has an API key.
func (p *AnthropicProvider) Enabled() bool {
	return p != nil && p.apiKey != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type apiResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (Utterance, error) {
	if !p.Enabled() {
		return Utterance{}, fmt.Errorf("anthropic provider not configured: %w", ErrGenerationUnavailable)
	}
	if !p.limiter.Allow() {
		return Utterance{}, fmt.Errorf("rate limit exceeded: %w", ErrGenerationUnavailable)
	}

	text, err := p.complete(ctx, systemPrompt(req), userPrompt(req), 200)
	if err != nil {
		return Utterance{}, err
	}
	u := parseUtterance(text, req.Context.Relationship.Affinity)
	u.Meta = hintsAtSimulation(req)
	return u, nil
}

func (p *AnthropicProvider) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(apiRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}

	slog.Debug("dialogue call",
		"input_tokens", apiResp.Usage.InputTokens,
		"output_tokens", apiResp.Usage.OutputTokens,
	)
	return apiResp.Content[0].Text, nil
}

func systemPrompt(req Request) string {
	p := req.Speaker.Personality
	s := fmt.Sprintf(
		`You are %s, a villager in a small town. Openness %.2f, sociability %.2f, agreeableness %.2f, curiosity %.2f, suspicion %.2f.
Right now you feel %s.
You are speaking to %s. Reply with a JSON object {"line": "...", "tone": -1.0..1.0} and nothing else. Keep the line under 25 words.`,
		req.Speaker.Name, p.Openness, p.Sociability, p.Agreeableness, p.Curiosity, p.Suspicion,
		req.Speaker.Mood.Label(),
		req.Listener.Name,
	)
	switch {
	case hintsAtSimulation(req):
		s += "\nYou know this town is a simulation. Hint at it in this line, carefully."
	case req.SpeakerAware:
		s += "\nYou know this town is a simulation, but keep it to yourself this time."
	}
	return s
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your feelings toward %s: affinity %.2f, trust %.2f.\n",
		req.Listener.Name, req.Context.Relationship.Affinity, req.Context.Relationship.Trust)
	fmt.Fprintf(&b, "Their feelings toward you: affinity %.2f, trust %.2f.\n",
		req.Context.Reciprocal.Affinity, req.Context.Reciprocal.Trust)
	writeMemories(&b, "What you remember about them", req.Context.SpeakerMemories)
	writeMemories(&b, "What they remember about you", req.Context.ListenerMemories)
	b.WriteString("Say one thing to them.")
	return b.String()
}

func writeMemories(b *strings.Builder, title string, recs []memory.Record) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, r := range recs {
		content := r.Content
		if content == "" {
			content = string(r.Kind)
		}
		fmt.Fprintf(b, "- %s (feeling %.1f)\n", content, r.Valence)
	}
}

// parseUtterance reads the model's JSON reply. A reply that is not JSON is
// used verbatim with the relationship's affinity as its tone.
func parseUtterance(text string, fallbackTone float64) Utterance {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var out struct {
		Line string  `json:"line"`
		Tone float64 `json:"tone"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil || out.Line == "" {
		return Utterance{Text: text, Valence: phi.Clamp(fallbackTone, -1, 1)}
	}
	return Utterance{Text: out.Line, Valence: phi.Clamp(out.Tone, -1, 1)}
}
