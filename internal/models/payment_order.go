package models

import (
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

// PaymentGateway identifies the upstream payment provider.
type PaymentGateway string

const PaymentGatewayPagBank PaymentGateway = "pagbank"

// PaymentOrder records a PIX order created upstream. It does not grant any
// entitlement by itself.
type PaymentOrder struct {
	ID               string         `firestore:"-" json:"id"`
	ReferenceID      string         `firestore:"referenceId" json:"referenceId"`
	Gateway          PaymentGateway `firestore:"gateway" json:"gateway"`
	GatewayOrderID   string         `firestore:"gatewayOrderId" json:"gatewayOrderId"`
	PlanID           string         `firestore:"planId" json:"planId"`
	PlanName         string         `firestore:"planName" json:"planName"`
	AmountCents      int64          `firestore:"amountCents" json:"amountCents"`
	UserID           string         `firestore:"userId" json:"userId"`
	UserName         string         `firestore:"userName" json:"userName"`
	UserEmail        string         `firestore:"userEmail" json:"userEmail"`
	QRCodeText       string         `firestore:"qrCodeText" json:"qrCodeText"`
	QRCodeURL        string         `firestore:"qrCodeUrl" json:"qrCodeUrl"`
	RequestMetadata  map[string]any `firestore:"requestMetadata" json:"-"`
	ResponseMetadata map[string]any `firestore:"responseMetadata" json:"-"`
	CreatedAt        time.Time      `firestore:"createdAt" json:"createdAt"`
}

func (o PaymentOrder) ToDoc() map[string]any {
	return map[string]any{
		"referenceId":      o.ReferenceID,
		"gateway":          string(o.Gateway),
		"gatewayOrderId":   o.GatewayOrderID,
		"planId":           o.PlanID,
		"planName":         o.PlanName,
		"amountCents":      o.AmountCents,
		"userId":           o.UserID,
		"userName":         o.UserName,
		"userEmail":        o.UserEmail,
		"qrCodeText":       o.QRCodeText,
		"qrCodeUrl":        o.QRCodeURL,
		"requestMetadata":  o.RequestMetadata,
		"responseMetadata": o.ResponseMetadata,
		"createdAt":        docstore.ServerTimestamp,
	}
}

func PaymentOrderFromDoc(doc *docstore.Document) (*PaymentOrder, error) {
	var o PaymentOrder
	if err := doc.DataTo(&o); err != nil {
		return nil, err
	}
	o.ID = doc.ID
	return &o, nil
}
