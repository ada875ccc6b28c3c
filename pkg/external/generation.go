// Package external contains clients for services outside the process
// boundary. The generation engine is a llama.cpp server speaking the
// completion protocol; the client wraps it with rate limiting and a
// circuit breaker so engine trouble degrades answers instead of piling
// up requests.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/patient-insight-server/internal/domain"
)

// EngineClient implements domain.GenerationEngine against a llama.cpp
// server. All generation traffic flows through its rate limiter and
// circuit breaker.
type EngineClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimit   *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	logger      *logrus.Logger
	maxTokens   int
	temperature float64
	topP        float64
}

// completionRequest is the llama.cpp completion payload.
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Stream      bool    `json:"stream"`
}

// completionResponse is the subset of the llama.cpp response we read.
type completionResponse struct {
	Content         string `json:"content"`
	Stop            bool   `json:"stop"`
	TokensPredicted int    `json:"tokens_predicted"`
}

// NewEngineClient creates a generation engine client.
func NewEngineClient(config *domain.EngineConfig, logger *logrus.Logger) *EngineClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8081"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 256
	}
	if config.Temperature == 0 {
		config.Temperature = 0.2
	}
	if config.TopP == 0 {
		config.TopP = 0.9
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.RateBurst == 0 {
		config.RateBurst = 4
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GenerationEngine",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &EngineClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:   rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		breaker:     breaker,
		logger:      logger,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		topP:        config.TopP,
	}
}

// Generate produces text for a prompt. An open circuit breaker surfaces
// as domain.ErrEngineUnavailable and blank engine output as
// domain.ErrEmptyGeneration, so callers can map both onto their fixed
// fallback responses.
func (c *EngineClient) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit breaker rejected request", domain.ErrEngineUnavailable)
		}
		return "", err
	}

	text := strings.TrimSpace(result.(string))
	if text == "" {
		return "", fmt.Errorf("%w: engine returned blank output", domain.ErrEmptyGeneration)
	}

	c.logger.WithFields(logrus.Fields{
		"prompt_length": len(prompt),
		"output_length": len(text),
		"duration":      time.Since(start).String(),
	}).Debug("Generation completed")

	return text, nil
}

// Health probes the engine's health endpoint.
func (c *EngineClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *EngineClient) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		NPredict:    c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/completion", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Patient-Insight-Server/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var completion completionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return completion.Content, nil
}
