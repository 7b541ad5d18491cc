package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

var testClient = models.Actor{UserID: "C1", Name: "João Silva", Email: "joao@example.com"}

type contractFixture struct {
	store     *docstore.MemoryStore
	contracts *ContractService
	tickets   *TicketService
	ticketID  string
	contract  *models.Message
}

func newContractFixture(t *testing.T) *contractFixture {
	t.Helper()
	ctx := context.Background()
	store := newTestStore()
	contracts := NewContractService(store, fixedNow)
	tickets := NewTicketService(store, contracts, fixedNow)

	ticket, err := tickets.OpenTicket(ctx, testClient, OpenTicketRequest{
		Subject: "Orçamento de mod",
		Type:    models.TicketTypeQuote,
		Message: "Quero um mod de veículos",
	})
	require.NoError(t, err)

	msg, err := contracts.GenerateContract(ctx, testAdmin, ticket.ID, models.ContractData{
		ClientName: "João Silva",
		ClientCPF:  "123.456.789-01",
		Object:     "Mod de veículos personalizados",
		Deadline:   "30 dias",
		Price:      "R$ 500,00",
	})
	require.NoError(t, err)

	return &contractFixture{store: store, contracts: contracts, tickets: tickets, ticketID: ticket.ID, contract: msg}
}

func (f *contractFixture) loadMessage(t *testing.T, ticketID, messageID string) *models.Message {
	t.Helper()
	doc, err := f.store.Get(context.Background(), models.MessagesCollection(ticketID), messageID)
	require.NoError(t, err)
	m, err := models.MessageFromDoc(doc)
	require.NoError(t, err)
	return m
}

func (f *contractFixture) contractStatus(t *testing.T) models.ContractStatus {
	t.Helper()
	c, ok := f.loadMessage(t, f.ticketID, f.contract.ID).Contract()
	require.True(t, ok)
	return c.Status
}

func (f *contractFixture) ticketStatus(t *testing.T, id string) models.TicketStatus {
	t.Helper()
	ticket, err := getTicket(context.Background(), f.store, id)
	require.NoError(t, err)
	return ticket.Status
}

// openCancellation opens a cancellation ticket for the fixture contract and
// issues the cancellation request through the admin chat command.
func (f *contractFixture) openCancellation(t *testing.T) (string, *models.Message) {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.tickets.OpenCancellationTicket(ctx, testClient, f.ticketID, f.contract.ID)
	require.NoError(t, err)

	msg, err := f.tickets.PostMessage(ctx, testAdmin, ticket.ID, PostMessageRequest{Text: "/cancelar"})
	require.NoError(t, err)
	require.Equal(t, models.KindCancellation, msg.Body.Kind())
	return ticket.ID, msg
}

func TestGenerateContract(t *testing.T) {
	f := newContractFixture(t)
	assert.Equal(t, models.ContractPending, f.contractStatus(t))
	assert.True(t, f.loadMessage(t, f.ticketID, f.contract.ID).SentByAdmin)

	ctx := context.Background()
	valid := models.ContractData{ClientName: "Ana", ClientCPF: "12345678901", Object: "Mapa custom", Deadline: "7 dias", Price: "R$ 100"}

	tests := []struct {
		name   string
		actor  models.Actor
		ticket string
		data   models.ContractData
		err    error
		field  string
	}{
		{name: "client cannot generate", actor: testClient, ticket: f.ticketID, data: valid, err: ErrForbidden},
		{name: "unknown ticket", actor: testAdmin, ticket: "nope", data: valid, err: ErrTicketNotFound},
		{name: "short name", actor: testAdmin, ticket: f.ticketID, data: func() models.ContractData { d := valid; d.ClientName = " Al "; return d }(), field: "clientName"},
		{name: "short cpf", actor: testAdmin, ticket: f.ticketID, data: func() models.ContractData { d := valid; d.ClientCPF = "1234"; return d }(), field: "clientCpf"},
		{name: "short object", actor: testAdmin, ticket: f.ticketID, data: func() models.ContractData { d := valid; d.Object = "mapa"; return d }(), field: "object"},
		{name: "missing deadline", actor: testAdmin, ticket: f.ticketID, data: func() models.ContractData { d := valid; d.Deadline = "  "; return d }(), field: "deadline"},
		{name: "missing price", actor: testAdmin, ticket: f.ticketID, data: func() models.ContractData { d := valid; d.Price = ""; return d }(), field: "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.contracts.GenerateContract(ctx, tt.actor, tt.ticket, tt.data)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	require.NoError(t, f.tickets.SetStatus(ctx, testAdmin, f.ticketID, models.TicketStatusClosed))
	_, err := f.contracts.GenerateContract(ctx, testAdmin, f.ticketID, valid)
	assert.ErrorIs(t, err, ErrTicketClosed)
}

func TestSignContract_SignatureMatching(t *testing.T) {
	tests := []struct {
		name  string
		typed string
		ok    bool
	}{
		{name: "exact", typed: "João Silva", ok: true},
		{name: "lower case", typed: "joão silva", ok: true},
		{name: "padded upper case", typed: "  JOÃO SILVA ", ok: true},
		{name: "decomposed accent", typed: "João Silva", ok: true},
		{name: "accent missing", typed: "Joao Silva", ok: false},
		{name: "partial", typed: "João", ok: false},
		{name: "empty", typed: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newContractFixture(t)
			signed, err := f.contracts.SignContract(context.Background(), testClient, f.ticketID, f.contract.ID, tt.typed)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrSignatureMismatch)
				assert.Equal(t, models.ContractPending, f.contractStatus(t))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.ContractSigned, f.contractStatus(t))
			stored := f.loadMessage(t, f.ticketID, f.contract.ID)
			assert.Equal(t, signed.Text, stored.Text)
			assert.Contains(t, stored.Text, "João Silva")
		})
	}
}

func TestSignContract_Authorization(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()

	_, err := f.contracts.SignContract(ctx, testAdmin, f.ticketID, f.contract.ID, "João Silva")
	assert.ErrorIs(t, err, ErrForbidden)

	stranger := models.Actor{UserID: "C2", Name: "Outro"}
	_, err = f.contracts.SignContract(ctx, stranger, f.ticketID, f.contract.ID, "João Silva")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.contracts.SignContract(ctx, testClient, f.ticketID, "missing", "João Silva")
	assert.ErrorIs(t, err, ErrContractNotFound)

	plain, err := f.tickets.PostMessage(ctx, testClient, f.ticketID, PostMessageRequest{Text: "olá"})
	require.NoError(t, err)
	_, err = f.contracts.SignContract(ctx, testClient, f.ticketID, plain.ID, "João Silva")
	assert.ErrorIs(t, err, ErrNotAContract)

	assert.Equal(t, models.ContractPending, f.contractStatus(t))
}

func TestSignedContractIsIrreversible(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()

	cancelTicket, err := f.tickets.OpenCancellationTicket(ctx, testClient, f.ticketID, f.contract.ID)
	require.NoError(t, err)
	cancelMsg, err := f.contracts.RequestCancellation(ctx, testAdmin, cancelTicket.ID)
	require.NoError(t, err)

	_, err = f.contracts.SignContract(ctx, testClient, f.ticketID, f.contract.ID, "João Silva")
	require.NoError(t, err)

	_, err = f.contracts.SignContract(ctx, testClient, f.ticketID, f.contract.ID, "João Silva")
	assert.ErrorIs(t, err, ErrContractNotPending)

	_, err = f.contracts.RequestCancellation(ctx, testAdmin, cancelTicket.ID)
	assert.ErrorIs(t, err, ErrContractNotPending)

	_, err = f.tickets.OpenCancellationTicket(ctx, testClient, f.ticketID, f.contract.ID)
	assert.ErrorIs(t, err, ErrContractNotPending)

	err = f.contracts.ConfirmCancellation(ctx, testClient, cancelTicket.ID, cancelMsg.ID, CancellationToken)
	assert.ErrorIs(t, err, ErrContractNotPending)

	assert.Equal(t, models.ContractSigned, f.contractStatus(t))
	assert.Equal(t, models.TicketStatusOpen, f.ticketStatus(t, cancelTicket.ID))
	c, ok := f.loadMessage(t, cancelTicket.ID, cancelMsg.ID).Cancellation()
	require.True(t, ok)
	assert.Equal(t, models.CancellationPending, c.Status)
}

func TestCancellation_EndToEnd(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()
	cancelTicketID, cancelMsg := f.openCancellation(t)

	c, ok := cancelMsg.Cancellation()
	require.True(t, ok)
	assert.Equal(t, f.ticketID, c.Data.OriginalTicketID)
	assert.Equal(t, f.contract.ID, c.Data.OriginalContractID)

	require.NoError(t, f.contracts.ConfirmCancellation(ctx, testClient, cancelTicketID, cancelMsg.ID, "CANCELAR"))

	stored, ok := f.loadMessage(t, cancelTicketID, cancelMsg.ID).Cancellation()
	require.True(t, ok)
	assert.Equal(t, models.CancellationConfirmed, stored.Status)
	assert.Equal(t, models.ContractCancelled, f.contractStatus(t))
	assert.Equal(t, models.TicketStatusClosed, f.ticketStatus(t, cancelTicketID))
	assert.Equal(t, models.TicketStatusOpen, f.ticketStatus(t, f.ticketID))

	err := f.contracts.ConfirmCancellation(ctx, testClient, cancelTicketID, cancelMsg.ID, "CANCELAR")
	assert.ErrorIs(t, err, ErrCancellationNotPending)

	_, err = f.contracts.SignContract(ctx, testClient, f.ticketID, f.contract.ID, "João Silva")
	assert.ErrorIs(t, err, ErrContractNotPending)
}

func TestCancellation_FailedCommitIsAtomic(t *testing.T) {
	targets := []struct {
		name       string
		collection func(f *contractFixture, cancelTicketID string) string
	}{
		{name: "cancellation message write fails", collection: func(_ *contractFixture, id string) string { return models.MessagesCollection(id) }},
		{name: "contract write fails", collection: func(f *contractFixture, _ string) string { return models.MessagesCollection(f.ticketID) }},
		{name: "ticket write fails", collection: func(*contractFixture, string) string { return models.CollectionTickets }},
	}

	for _, tt := range targets {
		t.Run(tt.name, func(t *testing.T) {
			f := newContractFixture(t)
			cancelTicketID, cancelMsg := f.openCancellation(t)

			failOn := tt.collection(f, cancelTicketID)
			f.store.SetFaultHook(func(w docstore.Write) error {
				if w.Kind == docstore.WriteUpdate && w.Collection == failOn {
					return errFault
				}
				return nil
			})

			err := f.contracts.ConfirmCancellation(context.Background(), testClient, cancelTicketID, cancelMsg.ID, "CANCELAR")
			require.ErrorIs(t, err, errFault)
			f.store.SetFaultHook(nil)

			c, ok := f.loadMessage(t, cancelTicketID, cancelMsg.ID).Cancellation()
			require.True(t, ok)
			assert.Equal(t, models.CancellationPending, c.Status)
			assert.Equal(t, models.ContractPending, f.contractStatus(t))
			assert.Equal(t, models.TicketStatusOpen, f.ticketStatus(t, cancelTicketID))
		})
	}
}

func TestConfirmCancellation_Rejections(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()
	cancelTicketID, cancelMsg := f.openCancellation(t)

	tests := []struct {
		name      string
		actor     models.Actor
		messageID string
		typed     string
		err       error
	}{
		{name: "lower case token", actor: testClient, messageID: cancelMsg.ID, typed: "cancelar", err: ErrConfirmationMismatch},
		{name: "padded token", actor: testClient, messageID: cancelMsg.ID, typed: " CANCELAR", err: ErrConfirmationMismatch},
		{name: "admin cannot confirm", actor: testAdmin, messageID: cancelMsg.ID, typed: "CANCELAR", err: ErrForbidden},
		{name: "stranger cannot confirm", actor: models.Actor{UserID: "C2"}, messageID: cancelMsg.ID, typed: "CANCELAR", err: ErrForbidden},
		{name: "unknown message", actor: testClient, messageID: "missing", typed: "CANCELAR", err: ErrCancellationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.contracts.ConfirmCancellation(ctx, tt.actor, cancelTicketID, tt.messageID, tt.typed)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Equal(t, models.ContractPending, f.contractStatus(t))
	assert.Equal(t, models.TicketStatusOpen, f.ticketStatus(t, cancelTicketID))
}

func TestRequestCancellation_Rejections(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()

	_, err := f.contracts.RequestCancellation(ctx, testAdmin, f.ticketID)
	assert.ErrorIs(t, err, ErrNotACancellationTicket)

	_, err = f.tickets.PostMessage(ctx, testAdmin, f.ticketID, PostMessageRequest{Text: "/cancelar"})
	assert.ErrorIs(t, err, ErrNotACancellationTicket)

	cancelTicket, err := f.tickets.OpenCancellationTicket(ctx, testClient, f.ticketID, f.contract.ID)
	require.NoError(t, err)

	_, err = f.contracts.RequestCancellation(ctx, testClient, cancelTicket.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.store.Delete(ctx, models.MessagesCollection(f.ticketID), f.contract.ID))
	_, err = f.contracts.RequestCancellation(ctx, testAdmin, cancelTicket.ID)
	assert.ErrorIs(t, err, ErrContractNotFound)

	_, err = f.contracts.RequestCancellation(ctx, testAdmin, "missing")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestClientCancelCommandIsPlainText(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()
	cancelTicket, err := f.tickets.OpenCancellationTicket(ctx, testClient, f.ticketID, f.contract.ID)
	require.NoError(t, err)

	msg, err := f.tickets.PostMessage(ctx, testClient, cancelTicket.ID, PostMessageRequest{Text: "/cancelar"})
	require.NoError(t, err)
	assert.Equal(t, models.KindPlain, msg.Body.Kind())
}
