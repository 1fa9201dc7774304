package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"ticket-market/models"
)

type EthConfig struct {
	PrivateKeyHex string
	// RPCURLs maps a numeric chain id to the JSON-RPC endpoint used for it.
	// A chain without an endpoint is "not registered" in this wallet.
	RPCURLs        map[uint64]string
	InitialChainID uint64
}

// EthProvider is a server-side wallet: one private key and a JSON-RPC
// endpoint per registered chain.
type EthProvider struct {
	*emitter

	key     *ecdsa.PrivateKey
	address common.Address
	rpcURLs map[uint64]string

	mu      sync.RWMutex
	client  *ethclient.Client
	chainID uint64
}

func DialEthProvider(ctx context.Context, cfg EthConfig) (*EthProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}

	url, ok := cfg.RPCURLs[cfg.InitialChainID]
	if !ok {
		return nil, fmt.Errorf("no rpc url configured for chain %s", models.FormatChainID(cfg.InitialChainID))
	}

	client, chainID, err := dialChain(ctx, url)
	if err != nil {
		return nil, err
	}

	return &EthProvider{
		emitter: newEmitter(),
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		rpcURLs: cfg.RPCURLs,
		client:  client,
		chainID: chainID,
	}, nil
}

func dialChain(ctx context.Context, url string) (*ethclient.Client, uint64, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("dial %s: %w", url, err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("query chain id from %s: %w", url, err)
	}
	return client, id.Uint64(), nil
}

func (p *EthProvider) On(event string, l Listener) Unsubscribe {
	return p.emitter.on(event, l)
}

func (p *EthProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case MethodRequestAccounts, MethodAccounts:
		// the key is held by this process, so it is always authorized
		return json.Marshal([]string{p.address.Hex()})

	case MethodChainID:
		p.mu.RLock()
		client := p.client
		p.mu.RUnlock()

		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("eth_chainId: %w", err)
		}
		return json.Marshal(models.FormatChainID(id.Uint64()))

	case MethodSwitchChain:
		sp, err := switchParams(params)
		if err != nil {
			return nil, err
		}
		return json.RawMessage("null"), p.switchChain(ctx, sp.ChainID)
	}

	return nil, &ProviderError{Code: CodeUnsupported, Message: "unsupported method " + method}
}

func (p *EthProvider) switchChain(ctx context.Context, hexID string) error {
	target, err := models.ParseChainID(hexID)
	if err != nil {
		return &ProviderError{Code: -32602, Message: "invalid chain id " + hexID}
	}
	url, ok := p.rpcURLs[target]
	if !ok {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID " + hexID}
	}

	p.mu.RLock()
	current := p.chainID
	p.mu.RUnlock()
	if current == target {
		return nil
	}

	client, got, err := dialChain(ctx, url)
	if err != nil {
		return err
	}
	if got != target {
		client.Close()
		return fmt.Errorf("rpc endpoint for %s reports chain %s", hexID, models.FormatChainID(got))
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.chainID = target
	p.mu.Unlock()
	old.Close()

	slog.Info("wallet switched chain", "chain_id", models.FormatChainID(target))
	p.emit(EventChainChanged, models.FormatChainID(target))
	return nil
}

// Backend is the client for the currently selected chain.
func (p *EthProvider) Backend() *ethclient.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

func (p *EthProvider) Address() common.Address {
	return p.address
}

// TransactOpts returns signing options bound to the current chain.
func (p *EthProvider) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	p.mu.RLock()
	chainID := p.chainID
	p.mu.RUnlock()

	opts, err := bind.NewKeyedTransactorWithChainID(p.key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func (p *EthProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
	}
}
