package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ticket-market/internal/services/notify"
	"ticket-market/internal/services/wallet"
	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"
)

// ReloadFunc is called after the wallet moves to another chain. Everything
// bound to the previous chain (contract bindings, cached views) is stale at
// that point and must be rebuilt.
type ReloadFunc func(ctx context.Context, chainID uint64)

type Option func(*Manager)

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithReload(fn ReloadFunc) Option {
	return func(m *Manager) { m.reload = fn }
}

// Manager owns the wallet session lifecycle:
// Disconnected -> Connecting -> Connected -> Disconnected.
type Manager struct {
	provider wallet.Provider
	flags    FlagStore
	notifier notify.Notifier
	reload   ReloadFunc

	mu        sync.RWMutex
	session   models.Session
	unsubs    []wallet.Unsubscribe
	listeners map[int]func(models.Session)
	nextID    int
	eventsCtx context.Context
}

// NewManager builds a session manager. A nil provider means no wallet is
// installed in this environment.
func NewManager(provider wallet.Provider, flags FlagStore, opts ...Option) *Manager {
	if flags == nil {
		flags = &MemoryFlagStore{}
	}
	m := &Manager{
		provider:  provider,
		flags:     flags,
		notifier:  notify.LogNotifier{},
		session:   models.Session{State: models.SessionDisconnected},
		listeners: make(map[int]func(models.Session)),
		eventsCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Session() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// OnChange registers fn to receive every new session snapshot.
func (m *Manager) OnChange(fn func(models.Session)) wallet.Unsubscribe {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// update applies fn under the lock and publishes the result to listeners.
func (m *Manager) update(fn func(s *models.Session)) models.Session {
	m.mu.Lock()
	fn(&m.session)
	snapshot := m.session
	listeners := make([]func(models.Session), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return snapshot
}

func (m *Manager) notify(ctx context.Context, n models.Notification, account string) {
	n.Account = account
	m.notifier.Notify(ctx, n)
}

// Connect asks the wallet for account access.
func (m *Manager) Connect(ctx context.Context) error {
	if m.provider == nil {
		m.notify(ctx, notify.Error("No wallet is installed. Please install a wallet to continue."), "")
		return status.ErrProviderUnavailable
	}

	var previous models.Session
	busy := false
	m.update(func(s *models.Session) {
		if s.State == models.SessionConnecting {
			busy = true
			return
		}
		previous = *s
		s.State = models.SessionConnecting
	})
	if busy {
		return status.ErrConnectInProgress
	}

	accounts, err := wallet.RequestAccounts(ctx, m.provider)
	if err == nil && len(accounts) == 0 {
		err = fmt.Errorf("wallet returned no accounts: %w", status.ErrUserRejected)
	}
	if err != nil {
		m.update(func(s *models.Session) { *s = previous })
		slog.Error("Failed to connect wallet", "error", err)
		m.notify(ctx, notify.Error("Failed to connect wallet. Please try again."), "")
		monitoring.TrackSessionEvent("connect_failed")
		return fmt.Errorf("connect wallet: %w", err)
	}

	account := accounts[0]
	if err := m.flags.SetConnected(ctx); err != nil {
		slog.Warn("Failed to persist wallet connection flag", "error", err)
	}

	networkID, hasNetwork := m.currentNetwork(ctx)
	m.update(func(s *models.Session) {
		s.Account = account
		s.NetworkID = networkID
		s.HasNetwork = hasNetwork
		s.State = models.SessionConnected
	})

	slog.Info("Wallet connected", "account", account, "network_id", networkID)
	m.notify(ctx, notify.Success("Wallet connected successfully!"), account)
	monitoring.TrackSessionEvent("connect")
	return nil
}

// Disconnect forgets the account locally. Wallets cannot be disconnected
// remotely, so the provider is not contacted.
func (m *Manager) Disconnect(ctx context.Context) {
	if err := m.flags.Clear(ctx); err != nil {
		slog.Warn("Failed to clear wallet connection flag", "error", err)
	}

	prev := m.Session()
	m.update(func(s *models.Session) {
		s.Account = ""
		s.State = models.SessionDisconnected
	})

	slog.Info("Wallet disconnected", "account", prev.Account)
	m.notify(ctx, notify.Info("Wallet disconnected"), prev.Account)
	monitoring.TrackSessionEvent("disconnect")
}

// SwitchNetwork asks the wallet to move to chainID (hex). It reports whether
// the switch happened; failures are notified, never returned.
func (m *Manager) SwitchNetwork(ctx context.Context, chainID string) bool {
	account := m.Session().Account
	if m.provider == nil {
		m.notify(ctx, notify.Error("No wallet is installed."), account)
		return false
	}

	if err := wallet.SwitchChain(ctx, m.provider, chainID); err != nil {
		if errors.Is(err, status.ErrUnregisteredNetwork) {
			m.notify(ctx, notify.Error("This network is not available in your wallet. Please add it manually."), account)
		} else {
			slog.Error("Failed to switch network", "error", err, "chain_id", chainID)
			m.notify(ctx, notify.Error("Failed to switch network"), account)
		}
		monitoring.TrackSessionEvent("switch_network_failed")
		return false
	}

	networkID, hasNetwork := m.currentNetwork(ctx)
	m.update(func(s *models.Session) {
		s.NetworkID = networkID
		s.HasNetwork = hasNetwork
	})
	monitoring.TrackSessionEvent("switch_network")
	return true
}

// Restore silently re-binds a previously connected wallet without prompting.
func (m *Manager) Restore(ctx context.Context) error {
	wasConnected, err := m.flags.WasConnected(ctx)
	if err != nil {
		return fmt.Errorf("read wallet connection flag: %w", err)
	}
	if !wasConnected || m.provider == nil {
		return nil
	}

	accounts, err := wallet.Accounts(ctx, m.provider)
	if err != nil {
		m.clearFlag(ctx)
		return fmt.Errorf("restore wallet session: %w", err)
	}
	if len(accounts) == 0 {
		m.clearFlag(ctx)
		return nil
	}

	networkID, hasNetwork := m.currentNetwork(ctx)
	m.update(func(s *models.Session) {
		s.Account = accounts[0]
		s.NetworkID = networkID
		s.HasNetwork = hasNetwork
		s.State = models.SessionConnected
	})

	slog.Info("Wallet session restored", "account", accounts[0], "network_id", networkID)
	monitoring.TrackSessionEvent("restore")
	return nil
}

// Start subscribes to the wallet's account and chain notifications until Close.
func (m *Manager) Start(ctx context.Context) {
	if m.provider == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.unsubs) > 0 {
		return
	}
	m.eventsCtx = ctx
	m.unsubs = append(m.unsubs,
		m.provider.On(wallet.EventAccountsChanged, m.handleAccountsChanged),
		m.provider.On(wallet.EventChainChanged, m.handleChainChanged),
	)
}

// Close releases the wallet subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (m *Manager) context() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsCtx
}

func (m *Manager) handleAccountsChanged(payload any) {
	ctx := m.context()
	accounts := toStrings(payload)
	monitoring.TrackSessionEvent("accounts_changed")

	if len(accounts) == 0 {
		m.Disconnect(ctx)
		return
	}

	m.update(func(s *models.Session) {
		s.Account = accounts[0]
		s.State = models.SessionConnected
	})
	slog.Info("Wallet account changed", "account", accounts[0])
}

func (m *Manager) handleChainChanged(payload any) {
	ctx := m.context()
	hexID, _ := payload.(string)
	id, err := models.ParseChainID(hexID)
	if err != nil {
		slog.Warn("Ignoring malformed chainChanged payload", "payload", payload)
		return
	}
	monitoring.TrackSessionEvent("chain_changed")

	m.update(func(s *models.Session) {
		s.NetworkID = id
		s.HasNetwork = true
	})
	slog.Info("Wallet chain changed, reloading", "chain_id", hexID)

	if m.reload != nil {
		m.reload(ctx, id)
	}
}

func (m *Manager) currentNetwork(ctx context.Context) (uint64, bool) {
	hexID, err := wallet.ChainID(ctx, m.provider)
	if err != nil {
		slog.Warn("Failed to read wallet network", "error", err)
		return 0, false
	}
	id, err := models.ParseChainID(hexID)
	if err != nil {
		slog.Warn("Wallet reported malformed chain id", "chain_id", hexID)
		return 0, false
	}
	return id, true
}

func (m *Manager) clearFlag(ctx context.Context) {
	if err := m.flags.Clear(ctx); err != nil {
		slog.Warn("Failed to clear wallet connection flag", "error", err)
	}
}

func toStrings(payload any) []string {
	switch v := payload.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
