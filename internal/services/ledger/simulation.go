package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"
	"ticket-market/utils"
)

type SimulationConfig struct {
	// QueryLatency and MutateLatency model the network round trip.
	QueryLatency  time.Duration `json:"query_latency"`
	MutateLatency time.Duration `json:"mutate_latency"`
	SeedDemo      bool          `json:"seed_demo"`
	// StrictBuyPrice rejects purchases whose tendered price differs from
	// the resale price. Off by default; mismatches are only logged.
	StrictBuyPrice bool `json:"strict_buy_price"`
}

func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		QueryLatency:  time.Second,
		MutateLatency: 2 * time.Second,
		SeedDemo:      true,
	}
}

// DemoTickets is the catalogue a fresh demo marketplace starts with.
func DemoTickets() []models.Ticket {
	return []models.Ticket{
		models.Ticket{
			ID:        "1",
			Name:      "VIP Pass",
			EventName: "ETH Global Conference 2025",
			FaceValue: "0.5",
			Owner:     "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		}.ListedAt("0.75"),
		{
			ID:        "2",
			Name:      "General Admission",
			EventName: "DeFi Summit 2025",
			FaceValue: "0.2",
			Owner:     "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		},
		models.Ticket{
			ID:        "3",
			Name:      "Backstage Pass",
			EventName: "NFT Music Festival",
			FaceValue: "1.0",
			Owner:     "0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2",
		}.ListedAt("1.5"),
	}
}

// Simulation is an in-memory ledger. It owns its ticket collection for the
// lifetime of the process; nothing is persisted.
type Simulation struct {
	cfg SimulationConfig

	mu      sync.RWMutex
	tickets []models.Ticket
}

func NewSimulation(cfg SimulationConfig, seed ...models.Ticket) *Simulation {
	s := &Simulation{cfg: cfg}
	if cfg.SeedDemo {
		s.tickets = append(s.tickets, DemoTickets()...)
	}
	s.tickets = append(s.tickets, models.CloneTickets(seed)...)
	return s
}

func (s *Simulation) Mode() Mode {
	return ModeSimulation
}

func (s *Simulation) Close(context.Context) error {
	return nil
}

func (s *Simulation) GetAllTickets(ctx context.Context) (tickets []models.Ticket, err error) {
	defer track("get_all_tickets", ModeSimulation, time.Now(), &err)

	if err := sleep(ctx, s.cfg.QueryLatency); err != nil {
		return nil, err
	}
	return s.filter(func(models.Ticket) bool { return true }), nil
}

func (s *Simulation) GetMyTickets(ctx context.Context, owner string) (tickets []models.Ticket, err error) {
	defer track("get_my_tickets", ModeSimulation, time.Now(), &err)

	if err := sleep(ctx, s.cfg.QueryLatency); err != nil {
		return nil, err
	}
	return s.filter(func(t models.Ticket) bool { return t.OwnedBy(owner) }), nil
}

func (s *Simulation) GetTicketsForSale(ctx context.Context) (tickets []models.Ticket, err error) {
	defer track("get_tickets_for_sale", ModeSimulation, time.Now(), &err)

	if err := sleep(ctx, s.cfg.QueryLatency); err != nil {
		return nil, err
	}
	return s.filter(func(t models.Ticket) bool { return t.IsForSale }), nil
}

func (s *Simulation) Mint(ctx context.Context, caller, name, eventName, price string) (id string, err error) {
	defer track("mint", ModeSimulation, time.Now(), &err)

	owner, err := callerAddress(caller)
	if err != nil {
		return "", err
	}
	if _, err := ParsePrice(price); err != nil {
		return "", err
	}
	if err := sleep(ctx, s.cfg.MutateLatency); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id = s.nextID()
	s.tickets = append(s.tickets, models.Ticket{
		ID:        id,
		Name:      name,
		EventName: eventName,
		FaceValue: strings.TrimSpace(price),
		Owner:     owner,
	})
	slog.Info("Ticket minted", "id", id, "owner", owner, "event", eventName)
	return id, nil
}

func (s *Simulation) ListForSale(ctx context.Context, caller, id, price string) (err error) {
	defer track("list_for_sale", ModeSimulation, time.Now(), &err)

	if _, err := callerAddress(caller); err != nil {
		return err
	}
	if _, err := ParsePrice(price); err != nil {
		return err
	}
	if err := sleep(ctx, s.cfg.MutateLatency); err != nil {
		return err
	}

	return s.mutate(id, func(t models.Ticket) (models.Ticket, error) {
		if !t.OwnedBy(caller) {
			return t, fmt.Errorf("list ticket %s: %w", id, status.ErrNotOwner)
		}
		return t.ListedAt(strings.TrimSpace(price)), nil
	})
}

func (s *Simulation) CancelSale(ctx context.Context, caller, id string) (err error) {
	defer track("cancel_sale", ModeSimulation, time.Now(), &err)

	if _, err := callerAddress(caller); err != nil {
		return err
	}
	if err := sleep(ctx, s.cfg.MutateLatency); err != nil {
		return err
	}

	return s.mutate(id, func(t models.Ticket) (models.Ticket, error) {
		if !t.OwnedBy(caller) {
			return t, fmt.Errorf("cancel sale of ticket %s: %w", id, status.ErrNotOwner)
		}
		return t.Unlisted(), nil
	})
}

func (s *Simulation) Buy(ctx context.Context, caller, id, price string) (err error) {
	defer track("buy", ModeSimulation, time.Now(), &err)

	buyer, err := callerAddress(caller)
	if err != nil {
		return err
	}
	if _, err := ParsePrice(price); err != nil {
		return err
	}
	if err := sleep(ctx, s.cfg.MutateLatency); err != nil {
		return err
	}

	return s.mutate(id, func(t models.Ticket) (models.Ticket, error) {
		if !t.IsForSale {
			return t, fmt.Errorf("buy ticket %s: %w", id, status.ErrNotForSale)
		}
		if !SamePrice(price, *t.ResalePrice) {
			monitoring.TrackBuyPriceMismatch()
			if s.cfg.StrictBuyPrice {
				return t, fmt.Errorf("buy ticket %s at %s, listed at %s: %w", id, price, *t.ResalePrice, status.ErrPriceMismatch)
			}
			slog.Warn("Tendered price differs from resale price, accepting",
				"id", id, "tendered", price, "resale_price", *t.ResalePrice)
		}
		return t.TransferTo(buyer), nil
	})
}

// mutate applies fn to the ticket with id under the write lock. The ticket is
// replaced only when fn succeeds, so failed calls leave it untouched.
func (s *Simulation) mutate(id string, fn func(models.Ticket) (models.Ticket, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.tickets {
		if t.ID != id {
			continue
		}
		updated, err := fn(t.Clone())
		if err != nil {
			return err
		}
		s.tickets[i] = updated
		return nil
	}
	return fmt.Errorf("ticket %s: %w", id, status.ErrNotFound)
}

func (s *Simulation) filter(keep func(models.Ticket) bool) []models.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// nextID derives the id from the collection size and skips forward past any
// id already taken. Callers hold the write lock.
func (s *Simulation) nextID() string {
	used := make(map[string]bool, len(s.tickets))
	for _, t := range s.tickets {
		used[t.ID] = true
	}
	n := len(s.tickets) + 1
	for used[strconv.Itoa(n)] {
		n++
	}
	return strconv.Itoa(n)
}

// callerAddress validates the caller and returns it as given, so a minted or
// bought ticket carries the exact address string the wallet reported.
func callerAddress(caller string) (string, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return "", status.ErrNoCaller
	}
	if _, err := utils.ParseAddress(caller); err != nil {
		return "", err
	}
	return caller, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func track(operation string, mode Mode, started time.Time, err *error) {
	monitoring.TrackLedgerOperation(operation, string(mode), started, *err)
}
