// Package backend talks to OpenAI-compatible completion endpoints. The
// endpoint and key come from the active connection profile, so one
// client serves any provider that speaks the /chat/completions shape.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/soullink/internal/composer"
	"github.com/kalambet/soullink/internal/entity"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.7
)

// EmptyReplyPlaceholder replaces a successful response that carried no
// displayable content.
const EmptyReplyPlaceholder = "模型已响应，但未返回可显示的内容。"

// ConfigError means the profile cannot be used at all: no endpoint or
// no key. Callers surface it inline instead of attempting a request.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// StatusError is a non-200 answer from the completion endpoint.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("接口返回状态码 %d", e.Status)
}

// Client issues completion and model-listing requests.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client with the default request timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: defaultTimeout}}
}

type chatRequest struct {
	Model       string                 `json:"model"`
	Messages    []composer.ChatMessage `json:"messages"`
	Temperature float64                `json:"temperature"`
	Stream      bool                   `json:"stream"`
}

// chatResponse accepts the three shapes seen in the wild: standard
// choices[].message, streaming-style choices[].delta, and a bare
// top-level message.
type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Complete sends a non-streaming chat completion against the profile's
// endpoint and returns the reply text. An empty but successful response
// yields EmptyReplyPlaceholder, never an error.
func (c *Client) Complete(ctx context.Context, profile entity.ConnectionProfile, msgs []composer.ChatMessage) (string, error) {
	endpoint := strings.TrimSpace(profile.BaseURL)
	key := strings.TrimSpace(profile.APIKey)
	if endpoint == "" || key == "" {
		return "", &ConfigError{Reason: "connection profile missing endpoint or key"}
	}

	temperature := defaultTemperature
	if profile.Temperature != nil {
		temperature = *profile.Temperature
	}
	body, err := json.Marshal(chatRequest{
		Model:       profile.Model,
		Messages:    msgs,
		Temperature: temperature,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(endpoint, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Status: resp.StatusCode}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	reply := extractReply(parsed)
	if reply == "" {
		return EmptyReplyPlaceholder, nil
	}
	return reply, nil
}

func extractReply(parsed chatResponse) string {
	if len(parsed.Choices) > 0 {
		ch := parsed.Choices[0]
		if ch.Message != nil && ch.Message.Content != "" {
			return ch.Message.Content
		}
		if ch.Delta != nil && ch.Delta.Content != "" {
			return ch.Delta.Content
		}
	}
	if parsed.Message != nil && parsed.Message.Content != "" {
		return parsed.Message.Content
	}
	return ""
}

// Model is one entry of a provider's model listing.
type Model struct {
	ID string `json:"id"`
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

// ListModels fetches the provider's model catalogue. The first entry is
// used to backfill profiles saved without an explicit model.
func (c *Client) ListModels(ctx context.Context, profile entity.ConnectionProfile) ([]Model, error) {
	endpoint := strings.TrimSpace(profile.BaseURL)
	key := strings.TrimSpace(profile.APIKey)
	if endpoint == "" || key == "" {
		return nil, &ConfigError{Reason: "connection profile missing endpoint or key"}
	}

	url := strings.TrimRight(endpoint, "/") + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Status: resp.StatusCode}
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return parsed.Data, nil
}
