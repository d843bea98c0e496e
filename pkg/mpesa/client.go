package mpesa

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

	"github.com/shopspring/decimal"

	"github.com/sokohub/sokohub-backend/pkg/config"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
)

const defaultCountryCode = "254"

var (
	errBaseURLRequired  = errors.New("mpesa base url is required")
	errAPIKeyRequired   = errors.New("mpesa api key is required")
	errCallbackRequired = errors.New("mpesa callback url is required")
)

// httpDoer lets tests substitute the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues STK push requests against the payment gateway. A successful
// call means the gateway accepted the request; the actual charge outcome
// arrives asynchronously on the configured callback URL.
type Client struct {
	http        httpDoer
	baseURL     string
	apiKey      string
	shortCode   string
	callbackURL string
	countryCode string
}

// NewClient validates the gateway configuration once at boot.
func NewClient(ctx context.Context, cfg config.MpesaConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return nil, errCallbackRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	countryCode := strings.TrimSpace(cfg.CountryCode)
	if countryCode == "" {
		countryCode = defaultCountryCode
	}

	if logg != nil {
		logg.Info(ctx, "mpesa client initialized")
	}

	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		shortCode:   cfg.ShortCode,
		callbackURL: cfg.CallbackURL,
		countryCode: countryCode,
	}, nil
}

// CountryCode reports the dialing prefix phone numbers are normalized to.
func (c *Client) CountryCode() string {
	if c == nil {
		return defaultCountryCode
	}
	return c.countryCode
}

type pushRequest struct {
	ShortCode   string `json:"short_code"`
	Phone       string `json:"phone_number"`
	Amount      string `json:"amount"`
	Reference   string `json:"account_reference"`
	CallbackURL string `json:"callback_url"`
}

type pushResponse struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	ResponseCode      string `json:"response_code"`
	ResponseDesc      string `json:"response_description"`
}

// InitiatePush asks the gateway to charge phone for amountCents and returns
// the correlation id that the asynchronous callback will carry.
func (c *Client) InitiatePush(ctx context.Context, phone string, amountCents int, reference string) (string, error) {
	normalized, err := NormalizePhone(phone, c.countryCode)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment phone")
	}
	if amountCents <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if strings.TrimSpace(reference) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	// The gateway bills in whole currency units, not cents.
	amount := decimal.NewFromInt(int64(amountCents)).Div(decimal.NewFromInt(100))

	payload, err := json.Marshal(pushRequest{
		ShortCode:   c.shortCode,
		Phone:       normalized,
		Amount:      amount.StringFixed(2),
		Reference:   reference,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode push request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stkpush/v1/processrequest", bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unreachable")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment gateway rejected request").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(body)})
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
	}
	if parsed.CheckoutRequestID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "gateway response missing correlation id").
			WithDetails(map[string]any{"response_code": parsed.ResponseCode, "description": parsed.ResponseDesc})
	}
	if parsed.ResponseCode != "" && parsed.ResponseCode != "0" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("gateway declined request: %s", parsed.ResponseDesc)).
			WithDetails(map[string]any{"response_code": parsed.ResponseCode})
	}

	return parsed.CheckoutRequestID, nil
}
