package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrProcessorDeclined is returned when Square rejects a charge.
var ErrProcessorDeclined = errors.New("payment declined by processor")

// SquareToken is the result of an OAuth code exchange.
type SquareToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	MerchantID   string `json:"merchant_id"`
}

// ChargeRequest is a card charge sent to Square.
type ChargeRequest struct {
	AccessToken    string
	SourceID       string
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	LocationID     string
	Note           string
}

// Charge is Square's view of a processed payment.
type Charge struct {
	ID         string
	Status     string
	ReceiptURL string
	CardBrand  string
	CardLast4  string
}

// SquareAPI is the slice of the Square HTTP API this service uses.
type SquareAPI interface {
	ObtainToken(ctx context.Context, code string) (*SquareToken, error)
	RevokeToken(ctx context.Context, accessToken string) error
	PrimaryLocation(ctx context.Context, accessToken string) (string, error)
	CreatePayment(ctx context.Context, req ChargeRequest) (*Charge, error)
}

// SquareEnvironments.
const (
	SquareSandboxBaseURL    = "https://connect.squareupsandbox.com"
	SquareProductionBaseURL = "https://connect.squareup.com"
)

// SquareClient talks to the Square REST API.
type SquareClient struct {
	baseURL       string
	applicationID string
	appSecret     string
	httpClient    *http.Client
}

// NewSquareClient creates a SquareClient against the given environment
// base URL.
func NewSquareClient(baseURL, applicationID, appSecret string, httpClient *http.Client) *SquareClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SquareClient{
		baseURL:       baseURL,
		applicationID: applicationID,
		appSecret:     appSecret,
		httpClient:    httpClient,
	}
}

// AuthorizeURL builds the OAuth consent URL; state carries the tenant id
// through the redirect.
func (c *SquareClient) AuthorizeURL(state string) string {
	scopes := "PAYMENTS_READ+PAYMENTS_WRITE+MERCHANT_PROFILE_READ+ITEMS_READ+ORDERS_READ+ORDERS_WRITE"
	return fmt.Sprintf("%s/oauth2/authorize?client_id=%s&scope=%s&session=false&state=%s",
		c.baseURL, c.applicationID, scopes, state)
}

// ObtainToken exchanges an OAuth authorization code for tokens.
func (c *SquareClient) ObtainToken(ctx context.Context, code string) (*SquareToken, error) {
	var token SquareToken
	err := c.post(ctx, "/oauth2/token", "", map[string]any{
		"client_id":     c.applicationID,
		"client_secret": c.appSecret,
		"code":          code,
		"grant_type":    "authorization_code",
	}, &token)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// RevokeToken revokes a tenant's access token at disconnect.
func (c *SquareClient) RevokeToken(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/oauth2/revoke", "Client "+c.appSecret, map[string]any{
		"client_id":    c.applicationID,
		"access_token": accessToken,
	}, nil)
}

// PrimaryLocation returns the merchant's first active location id.
func (c *SquareClient) PrimaryLocation(ctx context.Context, accessToken string) (string, error) {
	var body struct {
		Locations []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"locations"`
	}
	if err := c.get(ctx, "/v2/locations", "Bearer "+accessToken, &body); err != nil {
		return "", err
	}
	for _, loc := range body.Locations {
		if loc.Status == "ACTIVE" {
			return loc.ID, nil
		}
	}
	return "", nil
}

// CreatePayment charges a card source.
func (c *SquareClient) CreatePayment(ctx context.Context, req ChargeRequest) (*Charge, error) {
	payload := map[string]any{
		"source_id":       req.SourceID,
		"idempotency_key": req.IdempotencyKey,
		"amount_money": map[string]any{
			"amount":   req.AmountCents,
			"currency": req.Currency,
		},
		"location_id":  req.LocationID,
		"autocomplete": true,
	}
	if req.Note != "" {
		note := req.Note
		if len(note) > 500 {
			note = note[:500]
		}
		payload["note"] = note
	}

	var body struct {
		Payment struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			ReceiptURL  string `json:"receipt_url"`
			CardDetails struct {
				Card struct {
					CardBrand string `json:"card_brand"`
					Last4     string `json:"last_4"`
				} `json:"card"`
			} `json:"card_details"`
		} `json:"payment"`
	}
	if err := c.post(ctx, "/v2/payments", "Bearer "+req.AccessToken, payload, &body); err != nil {
		return nil, err
	}
	return &Charge{
		ID:         body.Payment.ID,
		Status:     body.Payment.Status,
		ReceiptURL: body.Payment.ReceiptURL,
		CardBrand:  body.Payment.CardDetails.Card.CardBrand,
		CardLast4:  body.Payment.CardDetails.Card.Last4,
	}, nil
}

func (c *SquareClient) post(ctx context.Context, path, authorization string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode square request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return c.do(req, out)
}

func (c *SquareClient) get(ctx context.Context, path, authorization string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", authorization)
	return c.do(req, out)
}

func (c *SquareClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("square request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Errors []struct {
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		detail := "request failed"
		if len(apiErr.Errors) > 0 && apiErr.Errors[0].Detail != "" {
			detail = apiErr.Errors[0].Detail
		}
		if resp.StatusCode < 500 {
			return fmt.Errorf("%w: %s", ErrProcessorDeclined, detail)
		}
		return fmt.Errorf("square %s: %s (%d)", req.URL.Path, detail, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode square response: %w", err)
	}
	return nil
}
