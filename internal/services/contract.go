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

// ContractService drives contract messages through
// pending -> signed and pending -> cancelled.
//
// Admins generate contracts and request cancellations; only the ticket owner
// signs or confirms a cancellation.
type ContractService struct {
	store docstore.Store
	now   func() time.Time
}

func NewContractService(store docstore.Store, now func() time.Time) *ContractService {
	if now == nil {
		now = time.Now
	}
	return &ContractService{store: store, now: now}
}

// GenerateContract appends a pending contract to an open ticket.
func (s *ContractService) GenerateContract(ctx context.Context, actor models.Actor, ticketID string, data models.ContractData) (*models.Message, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	data = trimContract(data)
	if err := validateStruct(data); err != nil {
		return nil, err
	}

	ticket, err := getTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketStatusOpen {
		return nil, ErrTicketClosed
	}

	msg := &models.Message{
		Text:        models.ContractText(data),
		SenderID:    actor.UserID,
		SenderName:  actor.Name,
		SentByAdmin: true,
		Body:        &models.ContractBody{Data: data, Status: models.ContractPending},
	}
	if err := appendMessage(ctx, s.store, ticketID, msg, s.now()); err != nil {
		return nil, fmt.Errorf("generate contract: %w", err)
	}

	slog.Info("contract generated", "ticket_id", ticketID, "message_id", msg.ID, "admin_id", actor.UserID)
	return msg, nil
}

// SignContract signs a pending contract when typedName matches the
// contractant name. Signing is irreversible.
func (s *ContractService) SignContract(ctx context.Context, actor models.Actor, ticketID, messageID, typedName string) (*models.Message, error) {
	if actor.IsAdmin {
		return nil, ErrForbidden
	}

	var signed *models.Message
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		ticket, err := txTicket(tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.UserID != actor.UserID {
			return ErrForbidden
		}

		msg, contract, err := txContract(tx, ticketID, messageID)
		if err != nil {
			return err
		}
		if contract.Status != models.ContractPending {
			return ErrContractNotPending
		}
		if !signatureMatches(typedName, contract.Data.ClientName) {
			return ErrSignatureMismatch
		}

		now := s.now()
		msg.Text = models.SignatureText(contract.Data.ClientName, now)
		contract.Status = models.ContractSigned
		contract.SignedAt = &now
		signed = msg

		return tx.Update(models.MessagesCollection(ticketID), messageID, []docstore.Update{
			{Path: "contractStatus", Value: string(models.ContractSigned)},
			{Path: "signedAt", Value: now},
			{Path: "text", Value: msg.Text},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sign contract: %w", err)
	}

	slog.Info("contract signed", "ticket_id", ticketID, "message_id", messageID, "user_id", actor.UserID)
	return signed, nil
}

// RequestCancellation appends a pending cancellation to a cancellation
// ticket, which must reference a contract that is still pending.
func (s *ContractService) RequestCancellation(ctx context.Context, actor models.Actor, ticketID string) (*models.Message, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	ticket, err := getTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsCancellationTicket() {
		return nil, ErrNotACancellationTicket
	}
	if ticket.Status != models.TicketStatusOpen {
		return nil, ErrTicketClosed
	}

	doc, err := s.store.Get(ctx, models.MessagesCollection(ticket.RelatedTicketID), ticket.RelatedContractID)
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

	msg := &models.Message{
		Text:        models.CancellationText,
		SenderID:    actor.UserID,
		SenderName:  actor.Name,
		SentByAdmin: true,
		Body: &models.CancellationBody{
			Data: models.CancellationData{
				OriginalTicketID:   ticket.RelatedTicketID,
				OriginalContractID: ticket.RelatedContractID,
			},
			Status: models.CancellationPending,
		},
	}
	if err := appendMessage(ctx, s.store, ticketID, msg, s.now()); err != nil {
		return nil, fmt.Errorf("request cancellation: %w", err)
	}

	slog.Info("cancellation requested",
		"ticket_id", ticketID,
		"message_id", msg.ID,
		"contract_id", ticket.RelatedContractID,
		"admin_id", actor.UserID,
	)
	return msg, nil
}

// ConfirmCancellation confirms a pending cancellation. The cancellation
// message, the original contract and the cancellation ticket are updated in
// one transaction.
func (s *ContractService) ConfirmCancellation(ctx context.Context, actor models.Actor, ticketID, messageID, typed string) error {
	if actor.IsAdmin {
		return ErrForbidden
	}

	var cancelled models.CancellationData
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		ticket, err := txTicket(tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.UserID != actor.UserID {
			return ErrForbidden
		}

		doc, err := tx.Get(models.MessagesCollection(ticketID), messageID)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrCancellationNotFound
		}
		if err != nil {
			return err
		}
		msg, err := models.MessageFromDoc(doc)
		if err != nil {
			return err
		}
		cancellation, ok := msg.Cancellation()
		if !ok {
			return ErrCancellationNotFound
		}
		if cancellation.Status != models.CancellationPending {
			return ErrCancellationNotPending
		}
		if !cancellationConfirmed(typed) {
			return ErrConfirmationMismatch
		}

		original := cancellation.Data
		_, contract, err := txContract(tx, original.OriginalTicketID, original.OriginalContractID)
		if err != nil {
			return err
		}
		if contract.Status != models.ContractPending {
			return ErrContractNotPending
		}

		now := s.now()
		if err := tx.Update(models.MessagesCollection(ticketID), messageID, []docstore.Update{
			{Path: "cancellationStatus", Value: string(models.CancellationConfirmed)},
			{Path: "confirmedAt", Value: now},
		}); err != nil {
			return err
		}
		if err := tx.Update(models.MessagesCollection(original.OriginalTicketID), original.OriginalContractID, []docstore.Update{
			{Path: "contractStatus", Value: string(models.ContractCancelled)},
		}); err != nil {
			return err
		}
		cancelled = original
		return tx.Update(models.CollectionTickets, ticketID, []docstore.Update{
			{Path: "status", Value: string(models.TicketStatusClosed)},
		})
	})
	if err != nil {
		return fmt.Errorf("confirm cancellation: %w", err)
	}

	slog.Info("cancellation confirmed",
		"ticket_id", ticketID,
		"message_id", messageID,
		"original_ticket_id", cancelled.OriginalTicketID,
		"contract_id", cancelled.OriginalContractID,
	)
	return nil
}

func trimContract(d models.ContractData) models.ContractData {
	d.ClientName = strings.TrimSpace(d.ClientName)
	d.ClientCPF = strings.TrimSpace(d.ClientCPF)
	d.Object = strings.TrimSpace(d.Object)
	d.Deadline = strings.TrimSpace(d.Deadline)
	d.Price = strings.TrimSpace(d.Price)
	return d
}

func getTicket(ctx context.Context, store docstore.Store, ticketID string) (*models.Ticket, error) {
	doc, err := store.Get(ctx, models.CollectionTickets, ticketID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	return models.TicketFromDoc(doc)
}

func txTicket(tx docstore.Tx, ticketID string) (*models.Ticket, error) {
	doc, err := tx.Get(models.CollectionTickets, ticketID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return models.TicketFromDoc(doc)
}

func txContract(tx docstore.Tx, ticketID, messageID string) (*models.Message, *models.ContractBody, error) {
	doc, err := tx.Get(models.MessagesCollection(ticketID), messageID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil, ErrContractNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return asContract(doc)
}

func asContract(doc *docstore.Document) (*models.Message, *models.ContractBody, error) {
	msg, err := models.MessageFromDoc(doc)
	if err != nil {
		return nil, nil, err
	}
	contract, ok := msg.Contract()
	if !ok {
		return nil, nil, ErrNotAContract
	}
	return msg, contract, nil
}

// appendMessage stores msg in the ticket's conversation and bumps the
// ticket's activity timestamp in the same batch.
func appendMessage(ctx context.Context, store docstore.Store, ticketID string, msg *models.Message, now time.Time) error {
	b := store.Batch()
	msg.ID = b.Create(models.MessagesCollection(ticketID), msg.ToDoc())
	b.Update(models.CollectionTickets, ticketID, []docstore.Update{
		{Path: "lastMessageAt", Value: docstore.ServerTimestamp},
	})
	if err := b.Commit(ctx); err != nil {
		return err
	}
	msg.CreatedAt = now
	return nil
}
