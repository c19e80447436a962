package payconnect

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
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	platformobservability "github.com/infracdo/backoffice/platform/observability"
)

const (
	generateQRPath = "/payments/generateqr"
	// maxBodyLog сколько байт тела ответа сохраняем в GatewayError
	maxBodyLog = 4096
)

// Config настройки PayConnect; парсится из env через caarlos0/env
type Config struct {
	BaseURL       string        `env:"PAYCONNECT_BASEURL"`
	Auth          string        `env:"PAYCONNECT_AUTH"`
	Timeout       time.Duration `env:"PAYCONNECT_TIMEOUT" envDefault:"15s"`
	ProcessorCode string        `env:"PAYCONNECT_PROCESSOR_CODE" envDefault:"QRPH-RBG"`
	InitMethod    string        `env:"PAYCONNECT_INIT_METHOD" envDefault:"static"`
	Currency      string        `env:"PAYCONNECT_CURRENCY" envDefault:"PHP"`
}

// ErrQRGenerationFailed шлюз ответил 2xx, но без rawQrString
var ErrQRGenerationFailed = errors.New("QR generation failed")

// GatewayError любая неудача вызова шлюза: транспорт, не-2xx, битый JSON, нет rawQrString.
// Body сырое тело ответа для диагностики в логах, наружу пользователю не отдаётся.
type GatewayError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payconnect: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payconnect: %v", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type generateQRRequest struct {
	ProcessorCode           string `json:"processorCode"`
	InitMethod              string `json:"initMethod"`
	Currency                string `json:"currency"`
	Amount                  string `json:"amount"`
	MerchantReferenceNumber string `json:"merchantReferenceNumber"`
}

type generateQRResponse struct {
	RawQRString string `json:"rawQrString"`
}

// Client HTTP клиент PayConnect. Ретраев нет: решение о повторе за вызывающим.
type Client struct {
	logger *zap.Logger
	cfg    Config
	client *http.Client
}

// NewClient создаёт клиента; общий таймаут запроса задаётся cfg.Timeout
func NewClient(logger *zap.Logger, cfg Config) *Client {
	return &Client{
		logger: logger,
		cfg:    cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// RequestPaymentQR запрашивает у шлюза QR строку для оплаты.
// transactionID уходит как merchantReferenceNumber и возвращается в webhook как chargeReference.
func (c *Client) RequestPaymentQR(ctx context.Context, transactionID string, amount decimal.Decimal) (rawQR string, err error) {
	if transactionID == "" {
		return "", errors.New("payconnect: transaction id is required")
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("payconnect: amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return "", fmt.Errorf("payconnect: amount has more than 2 decimal places, got %s", amount.String())
	}

	ctx, span := platformobservability.StartClientSpan(ctx, "payconnect", "payconnect.GenerateQR",
		attribute.String("transaction_id", transactionID),
		attribute.String("payconnect.processor_code", c.cfg.ProcessorCode),
	)
	defer func() { platformobservability.EndSpan(span, err) }()

	payload := generateQRRequest{
		ProcessorCode:           c.cfg.ProcessorCode,
		InitMethod:              c.cfg.InitMethod,
		Currency:                c.cfg.Currency,
		Amount:                  amount.StringFixed(2),
		MerchantReferenceNumber: transactionID,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + generateQRPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.cfg.Auth)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &GatewayError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	bodyStr := truncate(strings.TrimSpace(string(body)), maxBodyLog)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("payconnect returned non-2xx",
			zap.String("transaction_id", transactionID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", bodyStr),
		)
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: bodyStr, Err: errors.New("unexpected status")}
	}

	var result generateQRResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: bodyStr, Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.RawQRString == "" {
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: bodyStr, Err: ErrQRGenerationFailed}
	}

	c.logger.Debug("payconnect QR generated",
		zap.String("transaction_id", transactionID),
		zap.String("amount", payload.Amount),
	)

	return result.RawQRString, nil
}

// truncate обрезает строку до указанной длины
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
