package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Brownie44l1/leafcheck-api/internal/apperrors"
	"github.com/Brownie44l1/leafcheck-api/internal/metrics"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// GenerationConfig holds the fixed sampling parameters sent with every call.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type GeminiConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Generation GenerationConfig
	Timeout    time.Duration
}

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	config *GeminiConfig
	client *http.Client
}

func NewGeminiClient(config *GeminiConfig, client *http.Client) *GeminiClient {
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiClient{config: config, client: client}
}

func (g *GeminiClient) Model() string {
	return g.config.Model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: g.config.Generation,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(g.config.BaseURL, "/"), url.PathEscape(g.config.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.config.APIKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.NewUpstreamTimeoutError(err)
		}
		return "", apperrors.NewUpstreamUnavailableError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.NewUpstreamTimeoutError(err)
		}
		return "", apperrors.NewUpstreamUnavailableError(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", apperrors.NewUpstreamRejectedError(resp.StatusCode, upstreamMessage(raw))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", apperrors.NewUpstreamUnavailableError(
			fmt.Errorf("status %d: %s", resp.StatusCode, upstreamMessage(raw)))
	case resp.StatusCode != http.StatusOK:
		return "", apperrors.NewUpstreamBadResponseError(
			fmt.Sprintf("status %d: %s", resp.StatusCode, upstreamMessage(raw)))
	}

	return extractText(raw)
}

// extractText joins the text parts of the first candidate.
func extractText(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", apperrors.NewUpstreamBadResponseError("response is not valid JSON")
	}

	parts := gjson.GetBytes(raw, "candidates.0.content.parts")
	if !parts.Exists() || !parts.IsArray() {
		if reason := gjson.GetBytes(raw, "promptFeedback.blockReason"); reason.Exists() {
			return "", apperrors.NewUpstreamBadResponseError("prompt blocked: " + reason.String())
		}
		if reason := gjson.GetBytes(raw, "candidates.0.finishReason"); reason.Exists() {
			return "", apperrors.NewUpstreamBadResponseError("no content, finish reason " + reason.String())
		}
		return "", apperrors.NewUpstreamBadResponseError("no candidates in response")
	}

	var sb strings.Builder
	parts.ForEach(func(_, part gjson.Result) bool {
		sb.WriteString(part.Get("text").String())
		return true
	})
	if sb.Len() == 0 {
		return "", apperrors.NewUpstreamBadResponseError("candidate has no text")
	}
	return sb.String(), nil
}

func upstreamMessage(raw []byte) string {
	if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() {
		return msg.String()
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
