package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

func newTicketService() (*docstore.MemoryStore, *TicketService) {
	store := newTestStore()
	return store, NewTicketService(store, NewContractService(store, fixedNow), fixedNow)
}

func TestOpenTicket(t *testing.T) {
	store, svc := newTicketService()
	ctx := context.Background()

	ticket, err := svc.OpenTicket(ctx, testClient, OpenTicketRequest{Subject: "  Problema no download  "})
	require.NoError(t, err)
	assert.Equal(t, "Problema no download", ticket.Subject)
	assert.Equal(t, models.TicketTypeSupport, ticket.Type)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)

	msgs, err := store.Query(ctx, models.MessagesCollection(ticket.ID), docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	quote, err := svc.OpenTicket(ctx, testClient, OpenTicketRequest{
		Subject: "Orçamento",
		Type:    models.TicketTypeQuote,
		Message: "Preciso de um mapa",
	})
	require.NoError(t, err)
	list, err := svc.ListMessages(ctx, testClient, quote.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Preciso de um mapa", list[0].Text)
	assert.Equal(t, models.KindPlain, list[0].Body.Kind())
}

func TestOpenTicket_Validation(t *testing.T) {
	_, svc := newTicketService()

	tests := []struct {
		name  string
		req   OpenTicketRequest
		field string
	}{
		{name: "short subject", req: OpenTicketRequest{Subject: "oi"}, field: "subject"},
		{name: "unknown type", req: OpenTicketRequest{Subject: "Ajuda", Type: "refund"}, field: "type"},
		{name: "purchase without message", req: OpenTicketRequest{Subject: "Compra", Type: models.TicketTypePurchase}, field: "message"},
		{name: "message too long", req: OpenTicketRequest{Subject: "Ajuda", Message: strings.Repeat("a", 4001)}, field: "message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.OpenTicket(context.Background(), testClient, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestListTickets_Visibility(t *testing.T) {
	_, svc := newTicketService()
	ctx := context.Background()
	other := models.Actor{UserID: "C2", Name: "Maria"}

	mine, err := svc.OpenTicket(ctx, testClient, OpenTicketRequest{Subject: "Primeiro"})
	require.NoError(t, err)
	_, err = svc.OpenTicket(ctx, other, OpenTicketRequest{Subject: "Segundo"})
	require.NoError(t, err)

	own, err := svc.ListTickets(ctx, testClient)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	all, err := svc.ListTickets(ctx, testAdmin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.GetTicket(ctx, other, mine.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.ListMessages(ctx, other, mine.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.GetTicket(ctx, testAdmin, mine.ID)
	assert.NoError(t, err)
	_, err = svc.GetTicket(ctx, testAdmin, "missing")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestPostMessage(t *testing.T) {
	_, svc := newTicketService()
	ctx := context.Background()

	ticket, err := svc.OpenTicket(ctx, testClient, OpenTicketRequest{Subject: "Dúvida"})
	require.NoError(t, err)

	first, err := svc.PostMessage(ctx, testClient, ticket.ID, PostMessageRequest{Text: strings.Repeat("x", 200)})
	require.NoError(t, err)
	assert.False(t, first.SentByAdmin)

	reply, err := svc.PostMessage(ctx, testAdmin, ticket.ID, PostMessageRequest{Text: "Resposta", ReplyToID: first.ID})
	require.NoError(t, err)
	assert.True(t, reply.SentByAdmin)

	msgs, err := svc.ListMessages(ctx, testClient, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	body, ok := msgs[1].Body.(*models.PlainBody)
	require.True(t, ok)
	require.NotNil(t, body.ReplyTo)
	assert.Equal(t, first.ID, body.ReplyTo.MessageID)
	assert.Equal(t, testClient.Name, body.ReplyTo.SenderName)
	assert.Len(t, []rune(body.ReplyTo.Text), replyPreviewSize+1)

	_, err = svc.PostMessage(ctx, testClient, ticket.ID, PostMessageRequest{Text: "   "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.PostMessage(ctx, testClient, ticket.ID, PostMessageRequest{Text: "oi", ReplyToID: "missing"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "replyToId")

	_, err = svc.PostMessage(ctx, models.Actor{UserID: "C2"}, ticket.ID, PostMessageRequest{Text: "oi"})
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.SetStatus(ctx, testAdmin, ticket.ID, models.TicketStatusClosed))
	_, err = svc.PostMessage(ctx, testClient, ticket.ID, PostMessageRequest{Text: "ainda aí?"})
	assert.ErrorIs(t, err, ErrTicketClosed)
}

func TestSetStatus(t *testing.T) {
	_, svc := newTicketService()
	ctx := context.Background()
	ticket, err := svc.OpenTicket(ctx, testClient, OpenTicketRequest{Subject: "Status"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetStatus(ctx, testClient, ticket.ID, models.TicketStatusClosed), ErrForbidden)
	assert.ErrorIs(t, svc.SetStatus(ctx, testAdmin, "missing", models.TicketStatusClosed), ErrTicketNotFound)

	var verr *ValidationError
	require.ErrorAs(t, svc.SetStatus(ctx, testAdmin, ticket.ID, "archived"), &verr)

	require.NoError(t, svc.SetStatus(ctx, testAdmin, ticket.ID, models.TicketStatusClosed))
	require.NoError(t, svc.SetStatus(ctx, testAdmin, ticket.ID, models.TicketStatusOpen))
	got, err := svc.GetTicket(ctx, testClient, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusOpen, got.Status)
}

func TestDeleteTicket_RemovesMessages(t *testing.T) {
	store, svc := newTicketService()
	ctx := context.Background()
	ticket, err := svc.OpenTicket(ctx, testClient, OpenTicketRequest{Subject: "Apagar", Type: models.TicketTypePurchase, Message: "Quero comprar"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := svc.PostMessage(ctx, testClient, ticket.ID, PostMessageRequest{Text: "mensagem"})
		require.NoError(t, err)
	}

	assert.ErrorIs(t, svc.DeleteTicket(ctx, testClient, ticket.ID), ErrForbidden)
	require.NoError(t, svc.DeleteTicket(ctx, testAdmin, ticket.ID))

	_, err = store.Get(ctx, models.CollectionTickets, ticket.ID)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	msgs, err := store.Query(ctx, models.MessagesCollection(ticket.ID), docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, svc.DeleteTicket(ctx, testAdmin, ticket.ID), ErrTicketNotFound)
}

func TestListMessages_SkipsMalformed(t *testing.T) {
	store, svc := newTicketService()
	ctx := context.Background()
	ticket, err := svc.OpenTicket(ctx, testClient, OpenTicketRequest{Subject: "Conversa", Type: models.TicketTypeQuote, Message: "Olá"})
	require.NoError(t, err)

	_, err = store.Create(ctx, models.MessagesCollection(ticket.ID), map[string]any{
		"text":           "quebrada",
		"senderId":       "admin-1",
		"isContract":     true,
		"isCancellation": true,
		"createdAt":      docstore.ServerTimestamp,
	})
	require.NoError(t, err)

	msgs, err := svc.ListMessages(ctx, testClient, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Olá", msgs[0].Text)
}

func TestIsCancelCommand(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"/cancelar", true},
		{"/CANCELAR agora", true},
		{"cancelar", false},
		{"quero /cancelar", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isCancelCommand(tt.text), tt.text)
	}
}
