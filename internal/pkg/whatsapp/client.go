package whatsapp

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

	"github.com/ManuelReschke/Recurro/internal/pkg/env"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v17.0"

// Client talks to the WhatsApp Cloud API for one shop's phone number.
type Client struct {
	APIKey  string
	PhoneID string
	BaseURL string

	HTTPClient *http.Client
}

func NewClient(apiKey, phoneID string) *Client {
	return &Client{
		APIKey:  strings.TrimSpace(apiKey),
		PhoneID: strings.TrimSpace(phoneID),
		BaseURL: strings.TrimRight(env.GetEnv("WHATSAPP_API_BASE_URL", defaultGraphBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) send(ctx context.Context, payload map[string]any) error {
	if c.APIKey == "" || c.PhoneID == "" {
		return errors.New("whatsapp client is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp send failed: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return nil
}

// SendTemplate sends a pre-approved message template.
func (c *Client) SendTemplate(ctx context.Context, to, templateName string) error {
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":     templateName,
			"language": map[string]any{"code": "en"},
		},
	})
}

// SendText sends a plain text message. Used as the fallback when a
// template is not approved yet.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": text},
	})
}
