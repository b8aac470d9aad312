package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	codeSuccess         = 100
	codeAlreadyVerified = 101
)

// ZarinpalConfig holds merchant settings for the v4 REST API.
type ZarinpalConfig struct {
	BaseURL     string // e.g. https://sandbox.zarinpal.com/pg/v4/payment
	StartPayURL string // e.g. https://sandbox.zarinpal.com/pg/StartPay/
	MerchantID  string
	CallbackURL string
	Timeout     time.Duration
}

type ZarinpalGateway struct {
	config     ZarinpalConfig
	httpClient *http.Client
}

func NewZarinpalGateway(config ZarinpalConfig) *ZarinpalGateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ZarinpalGateway{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type zarinpalResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type zarinpalError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type requestData struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Authority string `json:"authority"`
}

type verifyData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	RefID   int64  `json:"ref_id"`
	CardPan string `json:"card_pan"`
}

func (g *ZarinpalGateway) Open(ctx context.Context, req Request) (*Session, error) {
	body := map[string]any{
		"merchant_id":  g.config.MerchantID,
		"amount":       req.Amount.IntPart(),
		"callback_url": g.config.CallbackURL,
		"description":  req.Description,
		"metadata": map[string]string{
			"mobile":   req.Mobile,
			"order_id": req.Reference,
		},
	}

	var data requestData
	if err := g.call(ctx, "/request.json", body, &data); err != nil {
		return nil, err
	}
	if data.Code != codeSuccess || data.Authority == "" {
		return nil, fmt.Errorf("%w: code %d %s", ErrRequestRejected, data.Code, data.Message)
	}

	return &Session{
		Authority:   data.Authority,
		RedirectURL: strings.TrimSuffix(g.config.StartPayURL, "/") + "/" + data.Authority,
	}, nil
}

func (g *ZarinpalGateway) Verify(ctx context.Context, authority string, amount decimal.Decimal) (*Verification, error) {
	body := map[string]any{
		"merchant_id": g.config.MerchantID,
		"amount":      amount.IntPart(),
		"authority":   authority,
	}

	var data verifyData
	if err := g.call(ctx, "/verify.json", body, &data); err != nil {
		return nil, err
	}
	switch data.Code {
	case codeSuccess, codeAlreadyVerified:
		return &Verification{
			RefID:      strconv.FormatInt(data.RefID, 10),
			CardPan:    data.CardPan,
			AlreadyMet: data.Code == codeAlreadyVerified,
		}, nil
	default:
		return nil, fmt.Errorf("%w: code %d %s", ErrVerificationFailed, data.Code, data.Message)
	}
}

// call posts body to path and decodes the "data" envelope into out.
func (g *ZarinpalGateway) call(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("zarinpal: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(g.config.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("zarinpal: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("zarinpal: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: HTTP %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var envelope zarinpalResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("zarinpal: decode response: %w", err)
	}

	// errors is an empty array on success and an object on failure.
	var apiErr zarinpalError
	if len(envelope.Errors) > 0 && envelope.Errors[0] == '{' {
		if err := json.Unmarshal(envelope.Errors, &apiErr); err == nil && apiErr.Code != 0 {
			if path == "/verify.json" {
				return fmt.Errorf("%w: code %d %s", ErrVerificationFailed, apiErr.Code, apiErr.Message)
			}
			return fmt.Errorf("%w: code %d %s", ErrRequestRejected, apiErr.Code, apiErr.Message)
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: HTTP %d", ErrRequestRejected, resp.StatusCode)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("zarinpal: decode data: %w", err)
	}
	return nil
}
