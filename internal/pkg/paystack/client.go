package paystack

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

	"github.com/ManuelReschke/Recurro/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.paystack.co"

// Client is a thin Paystack REST client scoped to one shop's secret key.
type Client struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClient creates a client for the given decrypted shop secret key.
func NewClient(secretKey string) *Client {
	return &Client{
		SecretKey:  strings.TrimSpace(secretKey),
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYSTACK_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// apiEnvelope is Paystack's uniform response wrapper.
type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) request(ctx context.Context, method, path string, body any, out any) error {
	if c.SecretKey == "" {
		return errors.New("paystack secret key is not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("paystack %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
		}
		return fmt.Errorf("paystack %s %s returned invalid JSON: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Status {
		return fmt.Errorf("paystack %s %s failed: status=%d message=%s", method, path, resp.StatusCode, envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("paystack %s %s returned unexpected data shape: %w", method, path, err)
		}
	}
	return nil
}

// Plans

type CreatePlanParams struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	Interval    string `json:"interval"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

type Plan struct {
	PlanCode string `json:"plan_code"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Interval string `json:"interval"`
	Currency string `json:"currency"`
}

func (c *Client) CreatePlan(ctx context.Context, params CreatePlanParams) (*Plan, error) {
	var out Plan
	if err := c.request(ctx, http.MethodPost, "/plan", params, &out); err != nil {
		return nil, err
	}
	if out.PlanCode == "" {
		return nil, errors.New("paystack create plan returned empty plan_code")
	}
	return &out, nil
}

type UpdatePlanParams struct {
	Name        string `json:"name,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Interval    string `json:"interval,omitempty"`
	Description string `json:"description,omitempty"`
}

func (c *Client) UpdatePlan(ctx context.Context, planCode string, params UpdatePlanParams) error {
	return c.request(ctx, http.MethodPut, "/plan/"+url.PathEscape(planCode), params, nil)
}

// Customers

type Authorization struct {
	AuthorizationCode string `json:"authorization_code"`
	CardType          string `json:"card_type"`
	Last4             string `json:"last4"`
	Reusable          bool   `json:"reusable"`
}

type Customer struct {
	CustomerCode   string          `json:"customer_code"`
	Email          string          `json:"email"`
	Authorizations []Authorization `json:"authorizations"`
}

func (c *Client) GetCustomer(ctx context.Context, emailOrCode string) (*Customer, error) {
	var out Customer
	if err := c.request(ctx, http.MethodGet, "/customer/"+url.PathEscape(emailOrCode), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscriptions

type Subscription struct {
	SubscriptionCode string `json:"subscription_code"`
	EmailToken       string `json:"email_token"`
	Status           string `json:"status"`
	NextPaymentDate  string `json:"next_payment_date"`
}

func (c *Client) GetSubscription(ctx context.Context, idOrCode string) (*Subscription, error) {
	var out Subscription
	if err := c.request(ctx, http.MethodGet, "/subscription/"+url.PathEscape(idOrCode), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type SubscriptionToggleParams struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

func (c *Client) EnableSubscription(ctx context.Context, params SubscriptionToggleParams) error {
	return c.request(ctx, http.MethodPost, "/subscription/enable", params, nil)
}

func (c *Client) DisableSubscription(ctx context.Context, params SubscriptionToggleParams) error {
	return c.request(ctx, http.MethodPost, "/subscription/disable", params, nil)
}

// Transactions

type InitializeTransactionParams struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Plan        string         `json:"plan,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type InitializedTransaction struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

func (c *Client) InitializeTransaction(ctx context.Context, params InitializeTransactionParams) (*InitializedTransaction, error) {
	var out InitializedTransaction
	if err := c.request(ctx, http.MethodPost, "/transaction/initialize", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ChargeAuthorizationParams struct {
	Email             string         `json:"email"`
	Amount            int64          `json:"amount"`
	AuthorizationCode string         `json:"authorization_code"`
	Currency          string         `json:"currency,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type ChargeResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// ChargeAuthorization performs an off-session charge against a saved card
// authorization. Used by the dunning retry step.
func (c *Client) ChargeAuthorization(ctx context.Context, params ChargeAuthorizationParams) (*ChargeResult, error) {
	var out ChargeResult
	if err := c.request(ctx, http.MethodPost, "/transaction/charge_authorization", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
