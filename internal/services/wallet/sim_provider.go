package wallet

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"ticket-market/models"
)

// SimProvider is an in-process wallet used with the simulation ledger and in
// tests. It behaves like an injected browser wallet: accounts stay hidden
// until eth_requestAccounts authorizes the site.
type SimProvider struct {
	*emitter

	mu          sync.Mutex
	accounts    []string
	authorized  bool
	rejecting   bool
	chainID     string
	knownChains map[string]bool
}

func NewSimProvider(chainID string, accounts ...string) *SimProvider {
	known := make(map[string]bool, len(models.SupportedNetworks))
	for _, n := range models.SupportedNetworks {
		known[n.ChainID] = true
	}
	return &SimProvider{
		emitter:     newEmitter(),
		accounts:    append([]string(nil), accounts...),
		chainID:     strings.ToLower(chainID),
		knownChains: known,
	}
}

func (p *SimProvider) On(event string, l Listener) Unsubscribe {
	return p.emitter.on(event, l)
}

func (p *SimProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch method {
	case MethodRequestAccounts:
		p.mu.Lock()
		if p.rejecting {
			p.mu.Unlock()
			return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
		}
		p.authorized = true
		accounts := append([]string{}, p.accounts...)
		p.mu.Unlock()
		return json.Marshal(accounts)

	case MethodAccounts:
		p.mu.Lock()
		accounts := []string{}
		if p.authorized {
			accounts = append(accounts, p.accounts...)
		}
		p.mu.Unlock()
		return json.Marshal(accounts)

	case MethodChainID:
		p.mu.Lock()
		id := p.chainID
		p.mu.Unlock()
		return json.Marshal(id)

	case MethodSwitchChain:
		sp, err := switchParams(params)
		if err != nil {
			return nil, err
		}
		target := strings.ToLower(sp.ChainID)

		p.mu.Lock()
		if !p.knownChains[target] {
			p.mu.Unlock()
			return nil, &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID " + sp.ChainID}
		}
		if p.rejecting {
			p.mu.Unlock()
			return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
		}
		changed := p.chainID != target
		p.chainID = target
		p.mu.Unlock()

		if changed {
			p.emit(EventChainChanged, target)
		}
		return json.RawMessage("null"), nil
	}

	return nil, &ProviderError{Code: CodeUnsupported, Message: "unsupported method " + method}
}

// Authorize marks the site as already connected, as after a previous session.
func (p *SimProvider) Authorize() {
	p.mu.Lock()
	p.authorized = true
	p.mu.Unlock()
}

// SetRejecting makes prompts fail with a user rejection.
func (p *SimProvider) SetRejecting(rejecting bool) {
	p.mu.Lock()
	p.rejecting = rejecting
	p.mu.Unlock()
}

// SetAccounts replaces the wallet's accounts and fires accountsChanged to an
// authorized site.
func (p *SimProvider) SetAccounts(accounts ...string) {
	p.mu.Lock()
	p.accounts = append([]string(nil), accounts...)
	authorized := p.authorized
	if len(accounts) == 0 {
		p.authorized = false
	}
	p.mu.Unlock()

	if authorized {
		p.emit(EventAccountsChanged, append([]string{}, accounts...))
	}
}

// SetChain switches the chain from the wallet side and fires chainChanged.
func (p *SimProvider) SetChain(chainID string) {
	chainID = strings.ToLower(chainID)
	p.mu.Lock()
	changed := p.chainID != chainID
	p.chainID = chainID
	p.knownChains[chainID] = true
	p.mu.Unlock()

	if changed {
		p.emit(EventChainChanged, chainID)
	}
}

func (p *SimProvider) Listeners(event string) int {
	return p.emitter.count(event)
}
