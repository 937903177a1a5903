package order

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ms-eventhub/internal/checkout"
	"ms-eventhub/internal/discount"
	"ms-eventhub/internal/events"
	eventsdb "ms-eventhub/internal/events/db"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	orderredis "ms-eventhub/internal/order/redis"
	"ms-eventhub/internal/promo"
	promodb "ms-eventhub/internal/promo/db"
	promoredis "ms-eventhub/internal/promo/redis"
	"ms-eventhub/internal/tickets"
	ticketsdb "ms-eventhub/internal/tickets/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const testWebhookSecret = "whsec_test"

// fakeProvider is an in-memory hosted checkout.
type fakeProvider struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*checkout.Session
	requests []checkout.SessionRequest
	fail     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]*checkout.Session{}}
}

func (p *fakeProvider) CreateSession(_ context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	p.seq++
	p.requests = append(p.requests, req)
	s := &checkout.Session{
		ID:            "cs_test_" + strconv.Itoa(p.seq),
		URL:           "https://checkout.example/" + strconv.Itoa(p.seq),
		Status:        "open",
		AmountTotal:   req.LineItem.UnitAmount * int64(req.LineItem.Quantity),
		CustomerEmail: req.CustomerEmail,
		Metadata:      req.Metadata,
		ExpiresAt:     req.ExpiresAt,
	}
	p.sessions[s.ID] = s
	return s, nil
}

func (p *fakeProvider) GetSession(_ context.Context, id string) (*checkout.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, checkout.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (p *fakeProvider) ExpireSession(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		s.Status = "expired"
	}
	return nil
}

func (p *fakeProvider) pay(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[id].Paid = true
	p.sessions[id].Status = "complete"
}

type recordedNotice struct{ userID, title, kind string }

type fakeNotifier struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (n *fakeNotifier) Notify(_ context.Context, userID, title, _, kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, recordedNotice{userID, title, kind})
}

type fixture struct {
	svc      *Service
	ledger   *promo.Ledger
	provider *fakeProvider
	holds    *orderredis.Reservations
	promoDB  *promodb.DB
	bun      *bun.DB
	notifier *fakeNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	for _, m := range []interface{}{
		(*models.Venue)(nil),
		(*models.Event)(nil),
		(*models.User)(nil),
		(*models.Ticket)(nil),
		(*models.TicketCode)(nil),
		(*models.UserPurchase)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(m).Exec(ctx)
		require.NoError(t, err)
	}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	log := logger.NewNop()
	evDB := &eventsdb.DB{Bun: bunDB}
	tkDB := &ticketsdb.DB{Bun: bunDB}
	pDB := &promodb.DB{Bun: bunDB}

	eventSvc := events.NewService(evDB, tkDB, log)
	ledger := promo.NewLedger(eventSvc, pDB, promoredis.NewClaims(client, 30*time.Minute), discount.DefaultPolicy(), log)
	provider := newFakeProvider()
	holds := orderredis.NewReservations(client, 35*time.Minute)
	notifier := &fakeNotifier{}

	svc := NewService(Dependencies{
		Events:        eventSvc,
		Promos:        ledger,
		Holds:         holds,
		Checkout:      checkout.NewAdapter(provider, checkout.Options{Currency: "npr", ClientBaseURL: "http://localhost:5173"}),
		Tickets:       tickets.NewService(tkDB, nil, log),
		Notifier:      notifier,
		Policy:        discount.DefaultPolicy(),
		WebhookSecret: testWebhookSecret,
		Logger:        log,
	})

	return &fixture{svc: svc, ledger: ledger, provider: provider, holds: holds, promoDB: pDB, bun: bunDB, notifier: notifier}
}

func (f *fixture) seedEvent(t *testing.T, id string, capacity, usageLimit int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := f.bun.NewInsert().Model(&models.Venue{ID: "v-" + id, Name: "Hall", Capacity: capacity, CreatedAt: now}).Exec(ctx)
	require.NoError(t, err)
	_, err = f.bun.NewInsert().Model(&models.Event{
		ID: id, Title: "Jazz Night", VenueID: "v-" + id, Price: 50,
		EventDate:  now.Add(30 * 24 * time.Hour),
		PromoCode:  "SAVE10", DiscountPercentage: 10, UsageLimit: usageLimit,
		OrganizerID: "org", CreatedAt: now, UpdatedAt: now,
	}).Exec(ctx)
	require.NoError(t, err)
}

func (f *fixture) usage(t *testing.T, eventID string) int {
	n, err := f.promoDB.UsageCount(context.Background(), eventID)
	require.NoError(t, err)
	return n
}

func buyer(id string) Buyer { return Buyer{UserID: id, Email: id + "@example.com"} }

func TestBuyAfterValidateConsumesOneSlot(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 100, 5)

	v, err := f.ledger.Validate(ctx, "e1", "u1", "save10")
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.Equal(t, 1, f.usage(t, "e1"))

	res, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", PromoCode: "save10", Quantity: 6})
	require.NoError(t, err)
	assert.True(t, res.PromoUsed)
	assert.Equal(t, 1, f.usage(t, "e1"), "validation claim reused")

	assert.Equal(t, 36.0, res.Discount.FinalUnitPrice)
	assert.Equal(t, 216.0, res.Discount.FinalPrice)
	assert.Equal(t, 84.0, res.Discount.TotalSavings)

	req := f.provider.requests[0]
	assert.Equal(t, int64(3600), req.LineItem.UnitAmount)
	assert.Equal(t, "group+promo", req.Metadata[checkout.KeyDiscountType])
	assert.Equal(t, "claim", req.Metadata[checkout.KeyPromoSource])
	assert.NotEmpty(t, req.Metadata[checkout.KeyHoldID])

	held, err := f.holds.Held(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 6, held)
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 100, 0)

	res, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", Quantity: 3})
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(ctx, "u1", res.SessionID)
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)

	f.provider.pay(res.SessionID)

	first, err := f.svc.VerifyPayment(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Len(t, first.Ticket.Codes, 3)
	assert.Equal(t, 150.0, first.Ticket.AmountTotal)

	second, err := f.svc.VerifyPayment(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)

	n, err := f.bun.NewSelect().Model((*models.Ticket)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	held, err := f.holds.Held(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, held, "hold released on issuance")

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, "payment_success", f.notifier.notices[0].kind)

	_, err = f.svc.VerifyPayment(ctx, "intruder", res.SessionID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyUnknownSession(t *testing.T) {
	f := setup(t)
	_, err := f.svc.VerifyPayment(context.Background(), "u1", "cs_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.VerifyPayment(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBuyRejectsWhenSoldOut(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 5, 0)

	first, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", Quantity: 5})
	require.NoError(t, err)

	_, err = f.svc.Buy(ctx, buyer("u2"), BuyRequest{EventID: "e1", Quantity: 1})
	assert.ErrorIs(t, err, ErrCapacityExhausted)
	assert.Len(t, f.provider.requests, 1, "no session created when rejected")

	require.NoError(t, f.svc.CancelCheckout(ctx, "u1", first.SessionID))
	_, err = f.svc.Buy(ctx, buyer("u2"), BuyRequest{EventID: "e1", Quantity: 1})
	require.NoError(t, err)

	// only the buyer may cancel
	assert.ErrorIs(t, f.svc.CancelCheckout(ctx, "u2", first.SessionID), ErrForbidden)
}

// racingCatalog lands a sale right after the first sold count is read.
type racingCatalog struct {
	EventCatalog
	once sync.Once
	sell func()
}

func (c *racingCatalog) TicketsSold(ctx context.Context, eventID string) (int, error) {
	n, err := c.EventCatalog.TicketsSold(ctx, eventID)
	c.once.Do(c.sell)
	return n, err
}

func TestBuyRechecksSalesAfterReserving(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 5, 0)

	tkDB := &ticketsdb.DB{Bun: f.bun}
	f.svc.events = &racingCatalog{EventCatalog: f.svc.events, sell: func() {
		_, err := tkDB.CreateIssued(ctx, &models.Ticket{
			ID: "t-other", UserID: "u9", EventID: "e1", SessionID: "cs_other",
			Quantity: 4, UnitPrice: 50, AmountTotal: 200,
			Codes:        []string{"TICKET-race00000001", "TICKET-race00000002", "TICKET-race00000003", "TICKET-race00000004"},
			PurchaseDate: time.Now().UTC(), DeliveryStatus: models.DeliveryPending,
		})
		require.NoError(t, err)
	}}

	_, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", Quantity: 2})
	assert.ErrorIs(t, err, ErrCapacityExhausted)
	assert.Empty(t, f.provider.requests)

	held, err := f.holds.Held(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, held, "hold released")

	res, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", Quantity: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
}

func TestBuyUnknownEvent(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Buy(context.Background(), buyer("u1"), BuyRequest{EventID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, events.ErrEventNotFound)
}

func TestBuyProviderFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 10, 3)
	f.provider.fail = errors.New("stripe down")

	_, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", PromoCode: "SAVE10", Quantity: 2})
	require.Error(t, err)

	assert.Equal(t, 0, f.usage(t, "e1"), "promo refunded")
	held, err := f.holds.Held(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, held, "hold released")
}

func TestPromoNeverOverRedeemedUnderConcurrentPurchases(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	const n = 12
	f.seedEvent(t, "e1", 1000, n-1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Buy(ctx, buyer(fmt.Sprintf("u%d", i)), BuyRequest{EventID: "e1", PromoCode: "SAVE10", Quantity: 1})
			if err == nil && res.PromoUsed {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n-1, applied)
	assert.Equal(t, n-1, f.usage(t, "e1"))
}

func TestQuoteDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 100, 1)

	q, err := f.svc.Quote(ctx, "e1", 6, "SAVE10")
	require.NoError(t, err)
	require.NotNil(t, q.Promo)
	assert.True(t, q.Promo.Valid)
	assert.Equal(t, 216.0, q.Discount.FinalPrice)
	assert.Equal(t, 100, q.SeatsLeft)
	assert.Equal(t, 0, f.usage(t, "e1"))
}

func TestSessionDetails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 100, 0)

	res, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", Quantity: 5})
	require.NoError(t, err)

	d, err := f.svc.SessionDetails(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Quantity)
	assert.Equal(t, int64(20000), d.AmountTotal)
	assert.True(t, d.DiscountApplied)
	assert.Equal(t, 20.0, d.DiscountPercentage)
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(ts + "." + payload))
	req := httptest.NewRequest(http.MethodPost, "/event/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t="+ts+",v1="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func webhookPayload(t *testing.T, eventType string, s *checkout.Session, paid bool) string {
	t.Helper()
	status := "unpaid"
	if paid {
		status = "paid"
	}
	meta := make([]string, 0, len(s.Metadata))
	for k, v := range s.Metadata {
		meta = append(meta, strconv.Quote(k)+":"+strconv.Quote(v))
	}
	return fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":%q,"object":"checkout.session","payment_status":%q,"status":"complete","amount_total":%d,"customer_email":%q,"metadata":{%s}}}}`,
		eventType, s.ID, status, s.AmountTotal, s.CustomerEmail, strings.Join(meta, ","))
}

func TestWebhookCompletedIssuesTicket(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 100, 0)

	res, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", Quantity: 2})
	require.NoError(t, err)
	s, err := f.provider.GetSession(ctx, res.SessionID)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleStripeWebhook(signedRequest(t, webhookPayload(t, "checkout.session.completed", s, true))))

	f.provider.pay(res.SessionID)
	v, err := f.svc.VerifyPayment(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.False(t, v.Created, "webhook minted it first")
	assert.Len(t, v.Ticket.Codes, 2)
}

func TestWebhookExpiredReleasesHold(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedEvent(t, "e1", 100, 0)

	res, err := f.svc.Buy(ctx, buyer("u1"), BuyRequest{EventID: "e1", Quantity: 4})
	require.NoError(t, err)
	s, err := f.provider.GetSession(ctx, res.SessionID)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleStripeWebhook(signedRequest(t, webhookPayload(t, "checkout.session.expired", s, false))))

	held, err := f.holds.Held(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, held)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/event/stripe/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	err := f.svc.HandleStripeWebhook(req)
	var werr *WebhookError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, http.StatusBadRequest, werr.StatusCode)
	assert.Equal(t, "validation", werr.Category)
}
