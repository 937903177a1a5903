package tickets_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	"ms-eventhub/internal/tickets"
	"ms-eventhub/internal/tickets/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, ticketID string) error {
	return m.Called(ctx, ticketID).Error(0)
}

type MockArtifacts struct {
	mock.Mock
}

func (m *MockArtifacts) QRCode(ctx context.Context, t *models.Ticket, code string) ([]byte, error) {
	args := m.Called(ctx, t, code)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArtifacts) PDF(ctx context.Context, ticketID string) ([]byte, error) {
	args := m.Called(ctx, ticketID)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArtifacts) Remove(ctx context.Context, t *models.Ticket) error {
	return m.Called(ctx, t).Error(0)
}

func setupStore(t *testing.T) *db.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	for _, m := range []interface{}{
		(*models.Venue)(nil), (*models.Event)(nil), (*models.User)(nil),
		(*models.Ticket)(nil), (*models.TicketCode)(nil), (*models.UserPurchase)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(m).Exec(context.Background())
		require.NoError(t, err)
	}
	return &db.DB{Bun: bunDB}
}

func issueReq(session string, qty int) tickets.IssueRequest {
	return tickets.IssueRequest{
		SessionID: session, EventID: "e1", UserID: "u1", UserEmail: "u1@example.com",
		Quantity: qty, UnitPrice: 36, AmountTotal: 36 * float64(qty), DiscountType: "group+promo",
	}
}

func TestIssueMintsCodesPerSeat(t *testing.T) {
	store := setupStore(t)
	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)
	svc := tickets.NewService(store, dispatcher, logger.NewNop())

	res, err := svc.Issue(context.Background(), issueReq("cs_1", 6))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, res.Ticket.Codes, 6)
	assert.Equal(t, 6, res.Ticket.Quantity)
	dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestIssueTwiceReturnsSameTicket(t *testing.T) {
	store := setupStore(t)
	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)
	svc := tickets.NewService(store, dispatcher, logger.NewNop())
	ctx := context.Background()

	first, err := svc.Issue(ctx, issueReq("cs_same", 2))
	require.NoError(t, err)
	second, err := svc.Issue(ctx, issueReq("cs_same", 2))
	require.NoError(t, err)

	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)
	assert.False(t, second.Created)

	n, err := store.Bun.NewSelect().Model((*models.Ticket)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestIssueConcurrentVerificationsMintOnce(t *testing.T) {
	store := setupStore(t)
	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)
	svc := tickets.NewService(store, dispatcher, logger.NewNop())
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Issue(ctx, issueReq("cs_race", 3))
			if assert.NoError(t, err) {
				ids[i] = res.Ticket.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	n, err := store.Bun.NewSelect().Model((*models.Ticket)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	codes, err := store.Bun.NewSelect().Model((*models.TicketCode)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, codes)
}

func TestIssueRetriesOnCodeCollision(t *testing.T) {
	store := setupStore(t)
	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	calls := 0
	gen := func(n int) ([]string, error) {
		calls++
		if calls <= 2 {
			return []string{"TICKET-fixed"}, nil
		}
		return []string{"TICKET-fresh"}, nil
	}
	svc := tickets.NewService(store, dispatcher, logger.NewNop(), tickets.WithCodeGenerator(gen))
	ctx := context.Background()

	_, err := svc.Issue(ctx, issueReq("cs_a", 1))
	require.NoError(t, err)

	res, err := svc.Issue(ctx, issueReq("cs_b", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"TICKET-fresh"}, res.Ticket.Codes)
	assert.Equal(t, 3, calls)
}

func TestIssueDeliveryFailureDoesNotFail(t *testing.T) {
	store := setupStore(t)
	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("queue down"))
	svc := tickets.NewService(store, dispatcher, logger.NewNop())

	res, err := svc.Issue(context.Background(), issueReq("cs_1", 1))
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestIssueRejectsBadRequest(t *testing.T) {
	svc := tickets.NewService(setupStore(t), nil, logger.NewNop())

	_, err := svc.Issue(context.Background(), issueReq("cs_1", 0))
	assert.ErrorIs(t, err, tickets.ErrInvalidRequest)
}

func TestCodesAreGloballyUnique(t *testing.T) {
	store := setupStore(t)
	svc := tickets.NewService(store, nil, logger.NewNop())
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		res, err := svc.Issue(ctx, issueReq(fmt.Sprintf("cs_%d", i), 5))
		require.NoError(t, err)
		assert.Len(t, res.Ticket.Codes, res.Ticket.Quantity)
		for _, c := range res.Ticket.Codes {
			assert.False(t, seen[c])
			seen[c] = true
		}
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	store := setupStore(t)
	svc := tickets.NewService(store, nil, logger.NewNop())
	ctx := context.Background()

	res, err := svc.Issue(ctx, issueReq("cs_own", 1))
	require.NoError(t, err)

	_, err = svc.Get(ctx, res.Ticket.ID, "someone-else")
	assert.ErrorIs(t, err, tickets.ErrForbidden)

	_, err = svc.Get(ctx, "missing", "u1")
	assert.ErrorIs(t, err, tickets.ErrTicketNotFound)
}

func TestDeleteRemovesArtifacts(t *testing.T) {
	store := setupStore(t)
	artifacts := new(MockArtifacts)
	artifacts.On("Remove", mock.Anything, mock.Anything).Return(nil)
	svc := tickets.NewService(store, nil, logger.NewNop(), tickets.WithArtifacts(artifacts))
	ctx := context.Background()

	res, err := svc.Issue(ctx, issueReq("cs_del", 2))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, res.Ticket.ID, "u1"))
	artifacts.AssertCalled(t, "Remove", mock.Anything, mock.MatchedBy(func(tk *models.Ticket) bool {
		return tk.ID == res.Ticket.ID
	}))

	_, err = svc.Get(ctx, res.Ticket.ID, "u1")
	assert.ErrorIs(t, err, tickets.ErrTicketNotFound)
}

func TestQRCodeUnknownCode(t *testing.T) {
	store := setupStore(t)
	artifacts := new(MockArtifacts)
	svc := tickets.NewService(store, nil, logger.NewNop(), tickets.WithArtifacts(artifacts))
	ctx := context.Background()

	res, err := svc.Issue(ctx, issueReq("cs_qr", 1))
	require.NoError(t, err)

	_, err = svc.QRCode(ctx, res.Ticket.ID, "TICKET-nope", "u1")
	assert.ErrorIs(t, err, tickets.ErrTicketNotFound)

	artifacts.On("QRCode", mock.Anything, mock.Anything, res.Ticket.Codes[0]).Return([]byte("png"), nil)
	png, err := svc.QRCode(ctx, res.Ticket.ID, "", "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), png)
}
