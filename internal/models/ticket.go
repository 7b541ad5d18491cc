package models

import (
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

type TicketType string

const (
	TicketTypeSupport  TicketType = "support"
	TicketTypeQuote    TicketType = "quote"
	TicketTypePurchase TicketType = "purchase"
)

// Ticket is a support conversation. Tickets opened to process the
// cancellation of a contract carry the two Related* ids.
type Ticket struct {
	ID                string       `firestore:"-" json:"id"`
	Subject           string       `firestore:"subject" json:"subject"`
	Status            TicketStatus `firestore:"status" json:"status"`
	Type              TicketType   `firestore:"type" json:"type"`
	UserID            string       `firestore:"userId" json:"userId"`
	UserName          string       `firestore:"userName" json:"userName"`
	UserEmail         string       `firestore:"userEmail" json:"userEmail"`
	RelatedTicketID   string       `firestore:"relatedTicketId" json:"relatedTicketId,omitempty"`
	RelatedContractID string       `firestore:"relatedContractId" json:"relatedContractId,omitempty"`
	CreatedAt         time.Time    `firestore:"createdAt" json:"createdAt"`
	LastMessageAt     *time.Time   `firestore:"lastMessageAt" json:"lastMessageAt,omitempty"`
}

// IsCancellationTicket reports whether the ticket references a contract in
// another ticket.
func (t Ticket) IsCancellationTicket() bool {
	return t.RelatedTicketID != "" && t.RelatedContractID != ""
}

// ToDoc encodes a new ticket. Relation fields are only written when set.
func (t Ticket) ToDoc() map[string]any {
	doc := map[string]any{
		"subject":       t.Subject,
		"status":        string(TicketStatusOpen),
		"type":          string(t.Type),
		"userId":        t.UserID,
		"userName":      t.UserName,
		"userEmail":     t.UserEmail,
		"createdAt":     docstore.ServerTimestamp,
		"lastMessageAt": docstore.ServerTimestamp,
	}
	if t.RelatedTicketID != "" {
		doc["relatedTicketId"] = t.RelatedTicketID
	}
	if t.RelatedContractID != "" {
		doc["relatedContractId"] = t.RelatedContractID
	}
	return doc
}

func TicketFromDoc(doc *docstore.Document) (*Ticket, error) {
	var t Ticket
	if err := doc.DataTo(&t); err != nil {
		return nil, err
	}
	t.ID = doc.ID
	return &t, nil
}
