package models

import (
	"fmt"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

type ContractStatus string

const (
	ContractPending   ContractStatus = "pending"
	ContractSigned    ContractStatus = "signed"
	ContractCancelled ContractStatus = "cancelled"
)

type CancellationStatus string

const (
	CancellationPending   CancellationStatus = "pending"
	CancellationConfirmed CancellationStatus = "confirmed"
)

// MessageKind names the variant of a message body.
type MessageKind string

const (
	KindPlain        MessageKind = "plain"
	KindContract     MessageKind = "contract"
	KindCancellation MessageKind = "cancellation"
)

// MessageBody is one of *PlainBody, *ContractBody or *CancellationBody.
type MessageBody interface {
	Kind() MessageKind
}

// Reply references an earlier message in the same ticket.
type Reply struct {
	MessageID  string `firestore:"messageId" json:"messageId"`
	Text       string `firestore:"text" json:"text"`
	SenderName string `firestore:"senderName" json:"senderName"`
}

type PlainBody struct {
	ReplyTo *Reply `json:"replyTo,omitempty"`
}

func (*PlainBody) Kind() MessageKind { return KindPlain }

// ContractData is the agreement offered to the ticket owner.
type ContractData struct {
	ClientName string `firestore:"clientName" json:"clientName" validate:"min=3"`
	ClientCPF  string `firestore:"clientCpf" json:"clientCpf" validate:"min=11"`
	Object     string `firestore:"object" json:"object" validate:"min=10"`
	Deadline   string `firestore:"deadline" json:"deadline" validate:"required"`
	Price      string `firestore:"price" json:"price" validate:"required"`
}

type ContractBody struct {
	Data     ContractData   `json:"contractData"`
	Status   ContractStatus `json:"contractStatus"`
	SignedAt *time.Time     `json:"signedAt,omitempty"`
}

func (*ContractBody) Kind() MessageKind { return KindContract }

// CancellationData points at the contract being cancelled.
type CancellationData struct {
	OriginalTicketID   string `firestore:"originalTicketId" json:"originalTicketId"`
	OriginalContractID string `firestore:"originalContractId" json:"originalContractId"`
}

type CancellationBody struct {
	Data        CancellationData   `json:"cancellationData"`
	Status      CancellationStatus `json:"cancellationStatus"`
	ConfirmedAt *time.Time         `json:"confirmedAt,omitempty"`
}

func (*CancellationBody) Kind() MessageKind { return KindCancellation }

// Message is an entry in a ticket's conversation.
type Message struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	SentByAdmin bool        `json:"isAdmin"`
	CreatedAt   time.Time   `json:"createdAt"`
	Body        MessageBody `json:"body"`
}

// Contract returns the contract body, if the message is a contract.
func (m *Message) Contract() (*ContractBody, bool) {
	b, ok := m.Body.(*ContractBody)
	return b, ok
}

// Cancellation returns the cancellation body, if the message is one.
func (m *Message) Cancellation() (*CancellationBody, bool) {
	b, ok := m.Body.(*CancellationBody)
	return b, ok
}

// messageRecord is the stored shape: one record per message with boolean
// discriminators.
type messageRecord struct {
	Text               string            `firestore:"text"`
	SenderID           string            `firestore:"senderId"`
	SenderName         string            `firestore:"senderName"`
	IsAdmin            bool              `firestore:"isAdmin"`
	CreatedAt          time.Time         `firestore:"createdAt"`
	ReplyTo            *Reply            `firestore:"replyTo"`
	IsContract         bool              `firestore:"isContract"`
	ContractData       *ContractData     `firestore:"contractData"`
	ContractStatus     string            `firestore:"contractStatus"`
	SignedAt           *time.Time        `firestore:"signedAt"`
	IsCancellation     bool              `firestore:"isCancellation"`
	CancellationData   *CancellationData `firestore:"cancellationData"`
	CancellationStatus string            `firestore:"cancellationStatus"`
	ConfirmedAt        *time.Time        `firestore:"confirmedAt"`
}

// ToDoc encodes a new message. CreatedAt is assigned by the store.
func (m Message) ToDoc() map[string]any {
	doc := map[string]any{
		"text":           m.Text,
		"senderId":       m.SenderID,
		"senderName":     m.SenderName,
		"isAdmin":        m.SentByAdmin,
		"createdAt":      docstore.ServerTimestamp,
		"isContract":     false,
		"isCancellation": false,
	}
	switch b := m.Body.(type) {
	case *PlainBody:
		if b.ReplyTo != nil {
			doc["replyTo"] = map[string]any{
				"messageId":  b.ReplyTo.MessageID,
				"text":       b.ReplyTo.Text,
				"senderName": b.ReplyTo.SenderName,
			}
		}
	case *ContractBody:
		doc["isContract"] = true
		doc["contractStatus"] = string(b.Status)
		doc["contractData"] = map[string]any{
			"clientName": b.Data.ClientName,
			"clientCpf":  b.Data.ClientCPF,
			"object":     b.Data.Object,
			"deadline":   b.Data.Deadline,
			"price":      b.Data.Price,
		}
	case *CancellationBody:
		doc["isCancellation"] = true
		doc["cancellationStatus"] = string(b.Status)
		doc["cancellationData"] = map[string]any{
			"originalTicketId":   b.Data.OriginalTicketID,
			"originalContractId": b.Data.OriginalContractID,
		}
	}
	return doc
}

// MessageFromDoc decodes a stored message into its variant. Records that set
// both discriminators, or that lack the payload their flag announces, are
// rejected.
func MessageFromDoc(doc *docstore.Document) (*Message, error) {
	var r messageRecord
	if err := doc.DataTo(&r); err != nil {
		return nil, err
	}

	m := &Message{
		ID:          doc.ID,
		Text:        r.Text,
		SenderID:    r.SenderID,
		SenderName:  r.SenderName,
		SentByAdmin: r.IsAdmin,
		CreatedAt:   r.CreatedAt,
	}

	switch {
	case r.IsContract && r.IsCancellation:
		return nil, fmt.Errorf("message %s is both contract and cancellation: %w", doc.ID, ErrMalformed)
	case r.IsContract:
		if r.ContractData == nil {
			return nil, fmt.Errorf("contract message %s has no contract data: %w", doc.ID, ErrMalformed)
		}
		status := ContractStatus(r.ContractStatus)
		if status == "" {
			status = ContractPending
		}
		m.Body = &ContractBody{Data: *r.ContractData, Status: status, SignedAt: r.SignedAt}
	case r.IsCancellation:
		if r.CancellationData == nil {
			return nil, fmt.Errorf("cancellation message %s has no cancellation data: %w", doc.ID, ErrMalformed)
		}
		status := CancellationStatus(r.CancellationStatus)
		if status == "" {
			status = CancellationPending
		}
		m.Body = &CancellationBody{Data: *r.CancellationData, Status: status, ConfirmedAt: r.ConfirmedAt}
	default:
		m.Body = &PlainBody{ReplyTo: r.ReplyTo}
	}
	return m, nil
}

// SignatureText replaces a contract's text once it is signed.
func SignatureText(name string, at time.Time) string {
	return fmt.Sprintf("Contrato assinado digitalmente por %s em %s.", name, at.UTC().Format("02/01/2006 15:04 UTC"))
}

// ContractText is the body shown with a freshly generated contract.
func ContractText(d ContractData) string {
	return fmt.Sprintf("Contrato de prestação de serviço para %s: %s. Prazo: %s. Valor: %s.", d.ClientName, d.Object, d.Deadline, d.Price)
}

// CancellationText is the body shown with a cancellation request.
const CancellationText = "Solicitação de cancelamento de contrato. Digite CANCELAR para confirmar."
