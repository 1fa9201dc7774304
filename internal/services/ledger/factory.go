package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"ticket-market/internal/services/wallet"
	"ticket-market/utils"
)

// OnChainConfig configures the contract-backed client.
type OnChainConfig struct {
	ContractAddress string
	Provider        *wallet.EthProvider
	ChainID         uint64
	Breaker         utils.BreakerSettings
}

// Factory implements ClientFactory
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// CreateClient creates a ledger client based on mode and configuration
func (f *Factory) CreateClient(ctx context.Context, mode Mode, config any) (Client, error) {
	switch mode {
	case ModeSimulation:
		simConfig, ok := config.(*SimulationConfig)
		if !ok {
			return nil, fmt.Errorf("invalid simulation config type, expected *ledger.SimulationConfig")
		}
		return NewSimulation(*simConfig), nil

	case ModeOnChain:
		chainConfig, ok := config.(*OnChainConfig)
		if !ok {
			return nil, fmt.Errorf("invalid on-chain config type, expected *ledger.OnChainConfig")
		}
		return newOnChainFromConfig(ctx, chainConfig)

	default:
		return nil, fmt.Errorf("unsupported ledger mode: %s", mode)
	}
}

// SupportedModes returns list of supported ledger modes
func (f *Factory) SupportedModes() []Mode {
	return []Mode{ModeSimulation, ModeOnChain}
}

func newOnChainFromConfig(ctx context.Context, cfg *OnChainConfig) (*OnChain, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("on-chain ledger requires an ethereum wallet provider")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	address := common.HexToAddress(cfg.ContractAddress)
	provider := cfg.Provider

	// The provider swaps its backend on chain switches, so every bind reads
	// the current one.
	binder := func(_ context.Context, chainID uint64) (Contract, error) {
		backend := provider.Backend()
		if backend == nil {
			return nil, fmt.Errorf("no RPC backend for chain %d", chainID)
		}
		return NewBoundContract(address, backend, provider), nil
	}

	settings := cfg.Breaker
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = UpstreamHealthy
	}
	breaker := utils.NewCircuitBreakerWithSettings("ledger-rpc", settings)
	return NewOnChain(ctx, binder, cfg.ChainID, breaker)
}
