package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

const (
	cancelCommand    = "/cancelar"
	replyPreviewSize = 120
	deleteChunkSize  = 400
)

// TicketService manages support tickets and their conversations.
type TicketService struct {
	store     docstore.Store
	contracts *ContractService
	now       func() time.Time
}

func NewTicketService(store docstore.Store, contracts *ContractService, now func() time.Time) *TicketService {
	if now == nil {
		now = time.Now
	}
	return &TicketService{store: store, contracts: contracts, now: now}
}

// OpenTicketRequest opens a support ticket or a service request.
type OpenTicketRequest struct {
	Subject string            `json:"subject" validate:"min=3,max=120"`
	Type    models.TicketType `json:"type" validate:"omitempty,oneof=support quote purchase"`
	Message string            `json:"message" validate:"max=4000"`
}

// OpenTicket creates a ticket owned by actor, with its first message when
// one is given.
func (s *TicketService) OpenTicket(ctx context.Context, actor models.Actor, req OpenTicketRequest) (*models.Ticket, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)
	if req.Type == "" {
		req.Type = models.TicketTypeSupport
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.Type != models.TicketTypeSupport && req.Message == "" {
		return nil, newValidationError("message", "is required for service requests")
	}

	ticket := &models.Ticket{
		Subject:   req.Subject,
		Status:    models.TicketStatusOpen,
		Type:      req.Type,
		UserID:    actor.UserID,
		UserName:  actor.Name,
		UserEmail: actor.Email,
	}
	if err := s.createTicket(ctx, actor, ticket, req.Message); err != nil {
		return nil, err
	}

	slog.Info("ticket opened", "ticket_id", ticket.ID, "type", ticket.Type, "user_id", actor.UserID)
	return ticket, nil
}

// OpenCancellationTicket lets the owner of a ticket ask for the cancellation
// of one of its pending contracts. The new ticket references the contract.
func (s *TicketService) OpenCancellationTicket(ctx context.Context, actor models.Actor, ticketID, contractID string) (*models.Ticket, error) {
	original, err := getTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if original.UserID != actor.UserID {
		return nil, ErrForbidden
	}

	doc, err := s.store.Get(ctx, models.MessagesCollection(ticketID), contractID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	_, contract, err := asContract(doc)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractPending {
		return nil, ErrContractNotPending
	}

	ticket := &models.Ticket{
		Subject:           "Cancelamento de contrato: " + original.Subject,
		Status:            models.TicketStatusOpen,
		Type:              models.TicketTypeSupport,
		UserID:            actor.UserID,
		UserName:          actor.Name,
		UserEmail:         actor.Email,
		RelatedTicketID:   ticketID,
		RelatedContractID: contractID,
	}
	if err := s.createTicket(ctx, actor, ticket, ""); err != nil {
		return nil, err
	}

	slog.Info("cancellation ticket opened", "ticket_id", ticket.ID, "original_ticket_id", ticketID, "contract_id", contractID)
	return ticket, nil
}

func (s *TicketService) createTicket(ctx context.Context, actor models.Actor, ticket *models.Ticket, firstMessage string) error {
	b := s.store.Batch()
	ticket.ID = b.Create(models.CollectionTickets, ticket.ToDoc())
	if firstMessage != "" {
		msg := models.Message{
			Text:        firstMessage,
			SenderID:    actor.UserID,
			SenderName:  actor.Name,
			SentByAdmin: actor.IsAdmin,
			Body:        &models.PlainBody{},
		}
		b.Create(models.MessagesCollection(ticket.ID), msg.ToDoc())
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	ticket.CreatedAt = s.now()
	return nil
}

// ListTickets returns the actor's tickets, or every ticket for admins,
// newest first.
func (s *TicketService) ListTickets(ctx context.Context, actor models.Actor) ([]*models.Ticket, error) {
	q := docstore.Query{OrderBy: "createdAt", Desc: true}
	if !actor.IsAdmin {
		q.Filters = []docstore.Filter{docstore.Where("userId", docstore.OpEqual, actor.UserID)}
	}
	docs, err := s.store.Query(ctx, models.CollectionTickets, q)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets := make([]*models.Ticket, 0, len(docs))
	for _, doc := range docs {
		t, err := models.TicketFromDoc(doc)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// GetTicket loads a ticket visible to actor.
func (s *TicketService) GetTicket(ctx context.Context, actor models.Actor, ticketID string) (*models.Ticket, error) {
	ticket, err := getTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && ticket.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return ticket, nil
}

// ListMessages returns a ticket's conversation in order.
func (s *TicketService) ListMessages(ctx context.Context, actor models.Actor, ticketID string) ([]*models.Message, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, models.MessagesCollection(ticketID), docstore.Query{OrderBy: "createdAt"})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]*models.Message, 0, len(docs))
	for _, doc := range docs {
		m, err := models.MessageFromDoc(doc)
		if err != nil {
			slog.Warn("skipping malformed message", "ticket_id", ticketID, "message_id", doc.ID, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// PostMessageRequest is a plain chat message.
type PostMessageRequest struct {
	Text      string `json:"text" validate:"required,max=4000"`
	ReplyToID string `json:"replyToId"`
}

// PostMessage appends a plain message. An admin typing the cancel command on
// a cancellation ticket issues a cancellation request instead.
func (s *TicketService) PostMessage(ctx context.Context, actor models.Actor, ticketID string, req PostMessageRequest) (*models.Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if actor.IsAdmin && isCancelCommand(req.Text) {
		return s.contracts.RequestCancellation(ctx, actor, ticketID)
	}

	ticket, err := s.GetTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketStatusOpen {
		return nil, ErrTicketClosed
	}

	body := &models.PlainBody{}
	if req.ReplyToID != "" {
		doc, err := s.store.Get(ctx, models.MessagesCollection(ticketID), req.ReplyToID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, newValidationError("replyToId", "message not found")
		}
		if err != nil {
			return nil, fmt.Errorf("load reply target: %w", err)
		}
		target, err := models.MessageFromDoc(doc)
		if err != nil {
			return nil, err
		}
		body.ReplyTo = &models.Reply{
			MessageID:  target.ID,
			Text:       preview(target.Text),
			SenderName: target.SenderName,
		}
	}

	msg := &models.Message{
		Text:        req.Text,
		SenderID:    actor.UserID,
		SenderName:  actor.Name,
		SentByAdmin: actor.IsAdmin,
		Body:        body,
	}
	if err := appendMessage(ctx, s.store, ticketID, msg, s.now()); err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	return msg, nil
}

// SetStatus closes or reopens a ticket.
func (s *TicketService) SetStatus(ctx context.Context, actor models.Actor, ticketID string, status models.TicketStatus) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	if status != models.TicketStatusOpen && status != models.TicketStatusClosed {
		return newValidationError("status", "must be one of [open closed]")
	}
	err := s.store.Update(ctx, models.CollectionTickets, ticketID, []docstore.Update{{Path: "status", Value: string(status)}})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrTicketNotFound
	}
	if err != nil {
		return fmt.Errorf("set ticket status: %w", err)
	}
	slog.Info("ticket status changed", "ticket_id", ticketID, "status", status, "admin_id", actor.UserID)
	return nil
}

// DeleteTicket removes a ticket's messages, then the ticket.
func (s *TicketService) DeleteTicket(ctx context.Context, actor models.Actor, ticketID string) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	if _, err := getTicket(ctx, s.store, ticketID); err != nil {
		return err
	}

	msgs, err := s.store.Query(ctx, models.MessagesCollection(ticketID), docstore.Query{})
	if err != nil {
		return fmt.Errorf("list messages for delete: %w", err)
	}
	for start := 0; start < len(msgs); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(msgs))
		b := s.store.Batch()
		for _, doc := range msgs[start:end] {
			b.Delete(models.MessagesCollection(ticketID), doc.ID)
		}
		if err := b.Commit(ctx); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
	}
	if err := s.store.Delete(ctx, models.CollectionTickets, ticketID); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}

	slog.Info("ticket deleted", "ticket_id", ticketID, "messages", len(msgs), "admin_id", actor.UserID)
	return nil
}

func isCancelCommand(text string) bool {
	fields := strings.Fields(text)
	return len(fields) > 0 && strings.EqualFold(fields[0], cancelCommand)
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= replyPreviewSize {
		return text
	}
	return string(r[:replyPreviewSize]) + "…"
}
