// Package powerclient calls the remote arithmetic service for power
// operations.
package powerclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	ErrStatus  = errors.New("powerclient: unexpected status")
	ErrPayload = errors.New("powerclient: malformed response")
)

const arithmeticPath = "/arithmetic"

type powerResponse struct {
	Result *float64 `json:"result"`
	Error  string   `json:"error,omitempty"`
}

// Client is a calculator.PowerService backed by GET /arithmetic.
type Client struct {
	resty  *resty.Client
	logger *zap.Logger
}

// New builds a client for the service at baseURL. Requests are traced
// through an otelhttp transport.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "go-chi-calculator/1.0").
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))

	return &Client{resty: r, logger: logger}
}

// Power returns base raised to exponent as computed by the remote service.
// Any non-200 status or a body without a numeric result is an error.
func (c *Client) Power(ctx context.Context, base, exponent float64) (float64, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"operation": "power",
			"operand1":  formatOperand(base),
			"operand2":  formatOperand(exponent),
		}).
		Get(arithmeticPath)
	if err != nil {
		return 0, fmt.Errorf("powerclient: request: %w", err)
	}

	var body powerResponse
	decodeErr := sonic.Unmarshal(resp.Body(), &body)

	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("power request rejected",
			zap.Int("status", resp.StatusCode()),
			zap.String("error", body.Error),
		)
		return 0, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrPayload, decodeErr)
	}
	if body.Result == nil {
		return 0, fmt.Errorf("%w: missing result", ErrPayload)
	}

	c.logger.Debug("power computed remotely",
		zap.Float64("base", base),
		zap.Float64("exponent", exponent),
		zap.Float64("result", *body.Result),
		zap.Duration("duration", resp.Time()),
	)
	return *body.Result, nil
}

func formatOperand(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
