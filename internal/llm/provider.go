package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/nkarev/driftbrief/internal/model"
)

// Provider defines the interface for LLM providers. The pipeline calls
// it for classification, claim extraction, and synthesis; every call is
// a blocking text-in/text-out request.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs one prompt and returns the raw completion
	Complete(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Request contains the input for one completion call
type Request struct {
	// System is the fixed per-stage prompt template
	System string

	// User is the per-unit prompt (chunk text plus context)
	User string

	// Model overrides the configured model (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls sampling; stages that parse JSON use 0
	Temperature float32

	// JSONOnly requests a JSON-object response where the provider supports it
	JSONOnly bool
}

// Response contains the completion output
type Response struct {
	Content    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests, seconds
	Timeout int

	// MaxTokens default for response generation
	MaxTokens int

	// RequestsPerMinute paces calls; 0 disables pacing
	RequestsPerMinute int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 500,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(mc model.LLMConfig) Config {
	return Config{
		Provider:          mc.Provider,
		Model:             mc.Model,
		APIKey:            mc.APIKey,
		BaseURL:           mc.BaseURL,
		Timeout:           mc.Timeout,
		MaxTokens:         mc.MaxTokens,
		RequestsPerMinute: mc.RequestsPerMinute,
	}
}

// DecodeJSON parses a JSON-object completion, tolerating markdown fences
// the model sometimes wraps around it. A parse failure is a recoverable
// per-unit error, never fatal to the run.
func DecodeJSON(content string, v interface{}) error {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("malformed model response: %w", err)
	}
	return nil
}

// throttled wraps a provider with a rate limiter so bulk runs stay
// under provider quotas
type throttled struct {
	Provider
	limiter *rate.Limiter
}

// Throttle wraps p so Complete waits for rate-limit clearance.
// rpm <= 0 returns p unchanged.
func Throttle(p Provider, rpm int) Provider {
	if rpm <= 0 {
		return p
	}
	return &throttled{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

func (t *throttled) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Provider.Complete(ctx, req)
}
