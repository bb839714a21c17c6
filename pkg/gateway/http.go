package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// HTTPConfig configures the hosted processor client
type HTTPConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// HTTPGateway talks JSON to a hosted payment processor
type HTTPGateway struct {
	config HTTPConfig
	logger *logrus.Logger
	client *http.Client
}

type createPaymentRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"return_url"`
}

type refundRequest struct {
	Amount string `json:"amount"`
}

// NewHTTPGateway creates a processor client
func NewHTTPGateway(cfg HTTPConfig, logger *logrus.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// CheckValue signs a request body.
// hash1 = SHA512(apiSecret) uppercase hex
// checkValue = SHA512("apiKey|body|hash1") uppercase hex
func (g *HTTPGateway) CheckValue(body []byte) string {
	hash1 := sha512.Sum512([]byte(g.config.APISecret))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s", g.config.APIKey, body, hash1Hex)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// CreatePayment opens a transaction and returns the checkout URL
func (g *HTTPGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, description, returnURL string) (*CreateResult, error) {
	g.logger.WithFields(logrus.Fields{
		"amount":      amount.StringFixed(2),
		"description": description,
	}).Info("Creating gateway payment")

	var result CreateResult
	err := g.do(ctx, http.MethodPost, "/payments", &createPaymentRequest{
		Amount:      amount.StringFixed(2),
		Description: description,
		ReturnURL:   returnURL,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.TransactionID == "" || result.PaymentURL == "" {
		return nil, fmt.Errorf("create payment: missing transaction id or payment url: %w", ErrMalformedResponse)
	}
	if result.Status == "" {
		result.Status = StatusPending
	}

	g.logger.WithFields(logrus.Fields{
		"transaction_id": result.TransactionID,
		"payment_url":    result.PaymentURL,
	}).Info("Gateway payment created")
	return &result, nil
}

// VerifyPayment fetches the processor's status for a transaction
func (g *HTTPGateway) VerifyPayment(ctx context.Context, transactionID string) (*VerifyResult, error) {
	var result VerifyResult
	if err := g.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(transactionID), nil, &result); err != nil {
		return nil, err
	}
	switch result.Status {
	case StatusPending, StatusSuccess, StatusFailed, StatusRefunded:
	default:
		return nil, fmt.Errorf("verify payment: unexpected status %q: %w", result.Status, ErrMalformedResponse)
	}
	if result.TransactionID == "" {
		result.TransactionID = transactionID
	}
	return &result, nil
}

// ProcessRefund asks the processor to refund part or all of a transaction
func (g *HTTPGateway) ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal) (*RefundResult, error) {
	g.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"amount":         amount.StringFixed(2),
	}).Info("Requesting gateway refund")

	var result RefundResult
	path := "/payments/" + url.PathEscape(transactionID) + "/refunds"
	if err := g.do(ctx, http.MethodPost, path, &refundRequest{Amount: amount.StringFixed(2)}, &result); err != nil {
		return nil, err
	}
	switch result.Status {
	case RefundSuccess:
		if result.RefundID == "" {
			return nil, fmt.Errorf("refund: missing refund id: %w", ErrMalformedResponse)
		}
	case RefundError:
	default:
		return nil, fmt.Errorf("refund: unexpected status %q: %w", result.Status, ErrMalformedResponse)
	}
	return &result, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", g.config.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Check-Value", g.CheckValue(body))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("path", path).Error("Failed to call payment gateway")
		return fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrUnknownTransaction)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"path":        path,
		}).Error("Payment gateway returned an error status")
		return &ResponseError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		g.logger.WithFields(logrus.Fields{
			"body":  string(respBody),
			"error": err.Error(),
		}).Error("Failed to parse payment gateway response")
		return fmt.Errorf("%v: %w", err, ErrMalformedResponse)
	}
	return nil
}
