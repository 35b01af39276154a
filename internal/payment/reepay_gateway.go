package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reepay-bridge/internal/logger"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type reepayGateway struct {
	privateKey      string
	apiBaseURL      string
	checkoutBaseURL string
	httpClient      HTTPDoer
}

// ----------------- Constructor -----------------

func NewReepayGateway(cfg GatewayConfig) Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewReepayGatewayWithClient(cfg, &http.Client{Timeout: timeout})
}

func NewReepayGatewayWithClient(cfg GatewayConfig, client HTTPDoer) Gateway {
	if cfg.PrivateKey == "" {
		logger.L().Warn("Reepay private key is empty")
	}

	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	checkoutBase := strings.TrimRight(cfg.CheckoutBaseURL, "/")
	if checkoutBase == "" {
		checkoutBase = defaultCheckoutBaseURL
	}

	return &reepayGateway{
		privateKey:      cfg.PrivateKey,
		apiBaseURL:      apiBase,
		checkoutBaseURL: checkoutBase,
		httpClient:      client,
	}
}

// ----------------- Session -----------------

func (g *reepayGateway) CreateSession(ctx context.Context, req ChargeSessionRequest) (*ChargeSession, error) {
	var session ChargeSession
	err := g.call(ctx, "create_session", http.MethodPost, g.checkoutBaseURL+"/v1/session/charge", req, &session)
	if err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, &GatewayError{Kind: ErrDecode, Op: "create_session", Message: "response carries no session id"}
	}
	return &session, nil
}

// ----------------- Charge -----------------

func (g *reepayGateway) GetCharge(ctx context.Context, handle string) (*Charge, error) {
	var charge Charge
	if err := g.call(ctx, "get_charge", http.MethodGet, g.chargeURL(handle, ""), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (g *reepayGateway) CancelCharge(ctx context.Context, handle string) (*Charge, error) {
	var charge Charge
	if err := g.call(ctx, "cancel_charge", http.MethodPost, g.chargeURL(handle, "/cancel"), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (g *reepayGateway) SettleCharge(ctx context.Context, handle string, amount int64) (*Charge, error) {
	body := map[string]int64{"amount": amount}

	var charge Charge
	if err := g.call(ctx, "settle_charge", http.MethodPost, g.chargeURL(handle, "/settle"), body, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

// ----------------- Refund -----------------

func (g *reepayGateway) RefundCharge(ctx context.Context, handle string, amount int64) (*Refund, error) {
	body := map[string]interface{}{
		"invoice": handle,
		"amount":  amount,
	}

	var refund Refund
	if err := g.call(ctx, "refund_charge", http.MethodPost, g.apiBaseURL+"/v1/refund", body, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (g *reepayGateway) chargeURL(handle, suffix string) string {
	return g.apiBaseURL + "/v1/charge/" + url.PathEscape(handle) + suffix
}

// apiError is the error body Reepay returns with non-2xx responses.
type apiError struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (g *reepayGateway) call(ctx context.Context, op, method, endpoint string, in, out interface{}) error {
	log := logger.FromCtx(ctx).With(
		zap.String("operation", op),
		zap.String("method", method),
		zap.String("url", endpoint),
	)

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			log.Error("Failed to marshal Reepay request", zap.Error(err))
			return &GatewayError{Kind: ErrProtocol, Op: op, Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return &GatewayError{Kind: ErrTransport, Op: op, Err: err}
	}

	req.SetBasicAuth(g.privateKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error("Reepay request failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return &GatewayError{Kind: ErrTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return &GatewayError{Kind: ErrTransport, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &GatewayError{Kind: ErrProtocol, Op: op, StatusCode: resp.StatusCode}

		var apiErr apiError
		if json.Unmarshal(bodyBytes, &apiErr) == nil {
			gwErr.Code = apiErr.Error
			gwErr.Message = apiErr.Message
		}

		log.Error("Reepay returned non-success status",
			zap.Int("http_status", resp.StatusCode),
			zap.String("error_code", apiErr.Error),
			zap.String("request_id", apiErr.RequestID),
			zap.ByteString("response", bodyBytes),
		)
		return gwErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		log.Error("Failed decoding Reepay response", zap.Error(err), zap.ByteString("response", bodyBytes))
		return &GatewayError{Kind: ErrDecode, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	log.Debug("Reepay call succeeded",
		zap.Int("http_status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
