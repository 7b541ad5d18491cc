// Package models holds the records kept in the document store and their
// document encodings.
package models

import (
	"errors"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

// Collection names.
const (
	CollectionUsers                = "users"
	CollectionRedemptionCodes      = "redemptionCodes"
	CollectionTickets              = "tickets"
	CollectionLessons              = "lessons"
	CollectionTools                = "tools"
	CollectionPaymentOrders        = "paymentOrders"
	CollectionScheduledTasks       = "scheduledTasks"
	CollectionScheduledTaskHistory = "scheduledTaskHistory"

	subMessages = "messages"
)

// ErrMalformed is returned when a stored record cannot be interpreted.
var ErrMalformed = errors.New("malformed record")

// MessagesCollection is the message sub-collection of a ticket.
func MessagesCollection(ticketID string) string {
	return docstore.Sub(CollectionTickets, ticketID, subMessages)
}
