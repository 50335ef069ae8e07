// Package translate calls a LibreTranslate-compatible HTTP provider.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrNotConfigured = errors.New("translation provider not configured")

type Client struct {
	http   *resty.Client
	apiKey string
}

type request struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type response struct {
	TranslatedText string `json:"translatedText"`
}

type providerError struct {
	Error string `json:"error"`
}

// NewClient returns nil when baseURL is empty.
func NewClient(baseURL, apiKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(15 * time.Second).
			SetHeader("Accept", "application/json"),
		apiKey: apiKey,
	}
}

// Translate returns text in targetLang. Blank text is returned unchanged
// without calling the provider.
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if c == nil {
		return "", ErrNotConfigured
	}

	var out response
	var failure providerError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{Q: text, Source: "auto", Target: targetLang, Format: "text", APIKey: c.apiKey}).
		SetResult(&out).
		SetError(&failure).
		Post("/translate")
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if resp.IsError() {
		if failure.Error != "" {
			return "", fmt.Errorf("translate: provider returned %d: %s", resp.StatusCode(), failure.Error)
		}
		return "", fmt.Errorf("translate: provider returned %d", resp.StatusCode())
	}
	return out.TranslatedText, nil
}
