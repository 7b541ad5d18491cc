package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

const (
	qrCodeLinkRel   = "QRCODE.PNG"
	qrCodeLifetime  = 24 * time.Hour
	maxUpstreamBody = 1 << 20
)

// PaymentService creates PIX orders on PagBank and records them.
type PaymentService struct {
	store   docstore.Store
	client  *http.Client
	baseURL string
	token   string
	now     func() time.Time
}

func NewPaymentService(store docstore.Store, baseURL, token string, timeout time.Duration) *PaymentService {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PaymentService{
		store:   store,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		now:     time.Now,
	}
}

// PixOrderRequest is the checkout form. Amount is in reais.
type PixOrderRequest struct {
	PlanID    string  `json:"planId" validate:"required"`
	PlanName  string  `json:"planName" validate:"required"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	UserID    string  `json:"userId" validate:"required"`
	UserName  string  `json:"userName" validate:"required"`
	UserEmail string  `json:"userEmail" validate:"required,email"`
}

// PixOrder is the QR code shown to the payer.
type PixOrder struct {
	OrderID    string `json:"order_id"`
	QRCodeText string `json:"qr_code_text"`
	QRCodeURL  string `json:"qr_code_url"`
}

type pagbankAmount struct {
	Value int64 `json:"value"`
}

type pagbankItem struct {
	ReferenceID string `json:"reference_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
}

type pagbankQRCode struct {
	Amount         pagbankAmount `json:"amount"`
	ExpirationDate string        `json:"expiration_date"`
}

type pagbankCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type pagbankOrderRequest struct {
	ReferenceID string          `json:"reference_id"`
	Customer    pagbankCustomer `json:"customer"`
	Items       []pagbankItem   `json:"items"`
	QRCodes     []pagbankQRCode `json:"qr_codes"`
}

type pagbankLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type pagbankOrderResponse struct {
	ID      string `json:"id"`
	QRCodes []struct {
		ID    string        `json:"id"`
		Text  string        `json:"text"`
		Links []pagbankLink `json:"links"`
	} `json:"qr_codes"`
}

type pagbankErrorResponse struct {
	ErrorMessages []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error_messages"`
}

// CreatePixOrder posts an order with a single PIX QR code. Nothing is
// granted to the user here.
func (s *PaymentService) CreatePixOrder(ctx context.Context, req PixOrderRequest) (*PixOrder, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if s.token == "" || s.baseURL == "" {
		return nil, ErrPaymentNotConfigured
	}

	cents := int64(math.Round(req.Amount * 100))
	referenceID := uuid.NewString()
	body := pagbankOrderRequest{
		ReferenceID: referenceID,
		Customer:    pagbankCustomer{Name: req.UserName, Email: req.UserEmail},
		Items: []pagbankItem{{
			ReferenceID: req.PlanID,
			Name:        req.PlanName,
			Quantity:    1,
			UnitAmount:  cents,
		}},
		QRCodes: []pagbankQRCode{{
			Amount:         pagbankAmount{Value: cents},
			ExpirationDate: s.now().Add(qrCodeLifetime).Format(time.RFC3339),
		}},
	}

	raw, err := s.post(ctx, "/orders", body)
	if err != nil {
		return nil, err
	}

	var resp pagbankOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if len(resp.QRCodes) == 0 {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: "order has no qr code"}
	}

	order := &PixOrder{OrderID: resp.ID, QRCodeText: resp.QRCodes[0].Text}
	for _, link := range resp.QRCodes[0].Links {
		if link.Rel == qrCodeLinkRel {
			order.QRCodeURL = link.Href
			break
		}
	}

	s.record(ctx, req, referenceID, cents, order, body, raw)
	slog.Info("pix order created", "order_id", order.OrderID, "plan_id", req.PlanID, "user_id", req.UserID, "amount_cents", cents)
	return order, nil
}

func (s *PaymentService) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment gateway request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read payment gateway response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		slog.Error("payment gateway rejected order", "status", res.StatusCode, "body", string(raw))
		return nil, &UpstreamError{Status: res.StatusCode, Message: upstreamMessage(raw)}
	}
	return raw, nil
}

func upstreamMessage(raw []byte) string {
	var e pagbankErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && len(e.ErrorMessages) > 0 {
		return e.ErrorMessages[0].Description
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return "payment gateway error"
}

// record stores the order. A failure here does not fail the checkout since
// the QR code already exists upstream.
func (s *PaymentService) record(ctx context.Context, req PixOrderRequest, referenceID string, cents int64, order *PixOrder, sent pagbankOrderRequest, received []byte) {
	po := models.PaymentOrder{
		ReferenceID:      referenceID,
		Gateway:          models.PaymentGatewayPagBank,
		GatewayOrderID:   order.OrderID,
		PlanID:           req.PlanID,
		PlanName:         req.PlanName,
		AmountCents:      cents,
		UserID:           req.UserID,
		UserName:         req.UserName,
		UserEmail:        req.UserEmail,
		QRCodeText:       order.QRCodeText,
		QRCodeURL:        order.QRCodeURL,
		RequestMetadata:  toMetadata(sent),
		ResponseMetadata: toMetadata(json.RawMessage(received)),
	}
	if _, err := s.store.Create(ctx, models.CollectionPaymentOrders, po.ToDoc()); err != nil {
		slog.Error("failed to record payment order", "order_id", order.OrderID, "error", err)
	}
}

func toMetadata(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
