package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ticket-market/internal/services/ledger"
	"ticket-market/internal/services/notify"
	"ticket-market/internal/services/session"
	"ticket-market/internal/services/wallet"
	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"
)

// SessionSource is the part of the session manager the marketplace reads.
type SessionSource interface {
	Session() models.Session
	OnChange(fn func(models.Session)) wallet.Unsubscribe
}

// Journal records successful marketplace actions.
type Journal interface {
	Record(ctx context.Context, activity models.Activity) error
}

type Option func(*Market)

func WithNotifier(n notify.Notifier) Option {
	return func(m *Market) { m.notifier = n }
}

func WithJournal(j Journal) Option {
	return func(m *Market) { m.journal = j }
}

// View is what the dashboard renders.
type View struct {
	Account    string             `json:"account,omitempty"`
	MyTickets  []models.Ticket    `json:"my_tickets"`
	ForSale    []models.Ticket    `json:"for_sale"`
	Processing bool               `json:"processing"`
	Loading    bool               `json:"loading"`
	Network    session.GateStatus `json:"network"`
	UpdatedAt  *time.Time         `json:"updated_at,omitempty"`
}

// Market is the marketplace view-model. It holds the last fetched views and
// serializes user actions with a single processing flag.
type Market struct {
	session  SessionSource
	gate     *session.Gate
	client   ledger.Client
	notifier notify.Notifier
	journal  Journal

	processing atomic.Bool

	mu         sync.RWMutex
	myTickets  []models.Ticket
	forSale    []models.Ticket
	loading    bool
	generation uint64
	updatedAt  time.Time
	lastKey    string

	unsub  wallet.Unsubscribe
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMarket(src SessionSource, gate *session.Gate, client ledger.Client, opts ...Option) *Market {
	m := &Market{
		session:  src,
		gate:     gate,
		client:   client,
		notifier: notify.LogNotifier{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Market) View() View {
	s := m.session.Session()

	m.mu.RLock()
	defer m.mu.RUnlock()

	v := View{
		Account:    s.Account,
		MyTickets:  models.CloneTickets(m.myTickets),
		ForSale:    models.CloneTickets(m.forSale),
		Processing: m.processing.Load(),
		Loading:    m.loading,
		Network:    m.gate.Status(s),
	}
	if !m.updatedAt.IsZero() {
		at := m.updatedAt
		v.UpdatedAt = &at
	}
	return v
}

// Refresh fetches "my tickets" and "for sale" concurrently and replaces both
// views once both calls succeed. On failure the previous views are kept.
func (m *Market) Refresh(ctx context.Context) error {
	s := m.session.Session()
	if err := m.gate.Check(s); err != nil {
		m.clear()
		return err
	}

	m.mu.Lock()
	m.generation++
	generation := m.generation
	m.loading = true
	m.mu.Unlock()

	var mine, forSale []models.Ticket
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mine, err = m.client.GetMyTickets(gctx, s.Account)
		return err
	})
	g.Go(func() error {
		var err error
		forSale, err = m.client.GetTicketsForSale(gctx)
		return err
	})
	err := g.Wait()
	monitoring.TrackMarketRefresh(err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.generation {
		// a newer refresh owns the views
		return err
	}
	m.loading = false

	if err != nil {
		slog.Error("Failed to load ticket data", "account", s.Account, "error", err)
		m.notifier.Notify(ctx, withAccount(notify.Error("Failed to load ticket data"), s.Account))
		return fmt.Errorf("refresh market: %w", err)
	}

	others := make([]models.Ticket, 0, len(forSale))
	for _, t := range forSale {
		if !t.OwnedBy(s.Account) {
			others = append(others, t)
		}
	}
	m.myTickets = mine
	m.forSale = others
	m.updatedAt = time.Now().UTC()
	return nil
}

func (m *Market) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.myTickets = nil
	m.forSale = nil
	m.loading = false
	m.updatedAt = time.Time{}
}

// Mint issues a new ticket to the connected account.
func (m *Market) Mint(ctx context.Context, name, eventName, price string) (string, error) {
	var id string
	err := m.act(ctx, action{
		name:    "mint",
		price:   price,
		success: "Ticket issued successfully",
		failure: "Failed to issue ticket",
		run: func(ctx context.Context, caller string) error {
			var err error
			id, err = m.client.Mint(ctx, caller, name, eventName, price)
			return err
		},
		ticketID: func() string { return id },
	})
	return id, err
}

func (m *Market) List(ctx context.Context, id, price string) error {
	return m.act(ctx, action{
		name:    "list",
		price:   price,
		success: "Ticket listed for sale",
		failure: "Failed to list ticket for sale",
		run: func(ctx context.Context, caller string) error {
			return m.client.ListForSale(ctx, caller, id, price)
		},
		ticketID: func() string { return id },
	})
}

func (m *Market) CancelSale(ctx context.Context, id string) error {
	return m.act(ctx, action{
		name:    "cancel",
		success: "Ticket removed from sale",
		failure: "Failed to remove ticket from sale",
		run: func(ctx context.Context, caller string) error {
			return m.client.CancelSale(ctx, caller, id)
		},
		ticketID: func() string { return id },
	})
}

func (m *Market) Buy(ctx context.Context, id, price string) error {
	return m.act(ctx, action{
		name:    "buy",
		price:   price,
		success: "Ticket purchased successfully",
		failure: "Failed to purchase ticket",
		run: func(ctx context.Context, caller string) error {
			return m.client.Buy(ctx, caller, id, price)
		},
		ticketID: func() string { return id },
	})
}

type action struct {
	name     string
	price    string
	success  string
	failure  string
	run      func(ctx context.Context, caller string) error
	ticketID func() string
}

// act runs a mutating action: one at a time, only on the required network,
// followed by a full refetch when it succeeds.
func (m *Market) act(ctx context.Context, a action) error {
	if !m.processing.CompareAndSwap(false, true) {
		return status.ErrBusy
	}
	defer m.processing.Store(false)

	s := m.session.Session()
	if err := m.gate.Check(s); err != nil {
		m.notifier.Notify(ctx, withAccount(notify.Error(gateMessage(err, m.gate)), s.Account))
		return err
	}

	if err := a.run(ctx, s.Account); err != nil {
		slog.Error("Marketplace action failed", "action", a.name, "account", s.Account, "error", err)
		m.notifier.Notify(ctx, withAccount(notify.Error(a.failure), s.Account))
		return err
	}

	id := a.ticketID()
	slog.Info("Marketplace action succeeded", "action", a.name, "ticket_id", id, "account", s.Account)
	m.notifier.Notify(ctx, withAccount(notify.Success(a.success), s.Account))

	if m.journal != nil {
		activity := models.Activity{
			Action:    a.name,
			TicketID:  id,
			Account:   s.Account,
			Price:     a.price,
			Mode:      string(m.client.Mode()),
			CreatedAt: time.Now().UTC(),
		}
		if err := m.journal.Record(ctx, activity); err != nil {
			slog.Warn("Failed to record marketplace activity", "action", a.name, "error", err)
		}
	}

	if err := m.Refresh(ctx); err != nil {
		slog.Warn("Refetch after action failed", "action", a.name, "error", err)
	}
	return nil
}

func gateMessage(err error, gate *session.Gate) string {
	if errors.Is(err, status.ErrNotConnected) {
		return "Please connect your wallet first"
	}
	return fmt.Sprintf("Please switch to %s to continue", gate.Required().Name)
}

func withAccount(n models.Notification, account string) models.Notification {
	n.Account = account
	return n
}

// Reload rebuilds chain-bound state after the wallet changed networks and
// refetches everything. It has the session.ReloadFunc signature.
func (m *Market) Reload(ctx context.Context, chainID uint64) {
	if r, ok := m.client.(ledger.Rebinder); ok {
		if err := r.Rebind(ctx, chainID); err != nil {
			slog.Error("Failed to rebind ledger after chain change", "chain_id", chainID, "error", err)
			m.clear()
			return
		}
	}
	// Any refresh already running against the old binding is superseded here.
	if err := m.Refresh(ctx); err != nil && !isGateError(err) {
		slog.Warn("Reload refresh failed", "chain_id", chainID, "error", err)
	}
}

// Start refreshes now and whenever the account or network changes, until
// Close.
func (m *Market) Start(ctx context.Context) {
	m.mu.Lock()
	if m.unsub != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	unsub := m.session.OnChange(func(s models.Session) { m.onSession(ctx, s) })

	m.mu.Lock()
	m.unsub = unsub
	m.mu.Unlock()

	m.onSession(ctx, m.session.Session())
}

func (m *Market) onSession(ctx context.Context, s models.Session) {
	key := sessionKey(s)

	m.mu.Lock()
	changed := key != m.lastKey
	m.lastKey = key
	m.mu.Unlock()
	if !changed {
		return
	}

	if m.gate.Check(s) != nil {
		m.clear()
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Refresh(ctx); err != nil && !isGateError(err) && ctx.Err() == nil {
			slog.Warn("Background refresh failed", "error", err)
		}
	}()
}

// Close stops following the session and waits for background refreshes.
func (m *Market) Close() {
	m.mu.Lock()
	unsub, cancel := m.unsub, m.cancel
	m.unsub, m.cancel = nil, nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// WaitIdle blocks until background refreshes started so far have finished.
func (m *Market) WaitIdle() {
	m.wg.Wait()
}

func sessionKey(s models.Session) string {
	if !s.IsConnected() {
		return ""
	}
	return fmt.Sprintf("%s@%d/%t", strings.ToLower(s.Account), s.NetworkID, s.HasNetwork)
}

func isGateError(err error) bool {
	return errors.Is(err, status.ErrNotConnected) || errors.Is(err, status.ErrWrongNetwork)
}
