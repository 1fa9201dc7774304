package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ticket-market/internal/status"
)

// Methods understood by a wallet provider (EIP-1193 / EIP-3326).
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodChainID         = "eth_chainId"
	MethodSwitchChain     = "wallet_switchEthereumChain"
)

// Events a provider emits.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

// Provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeUnrecognizedChain = 4902
)

// Provider is the wallet the session is bound to. Results are JSON encoded
// the same way an injected browser wallet returns them.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	// On registers a listener. The payload is []string for accountsChanged
	// and a hex chain id string for chainChanged.
	On(event string, listener Listener) Unsubscribe
}

type Listener func(payload any)

// Unsubscribe releases a listener registration. Safe to call more than once.
type Unsubscribe func()

// SwitchChainParams is the single parameter of wallet_switchEthereumChain.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet provider error %d: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	switch e.Code {
	case CodeUserRejected:
		return status.ErrUserRejected
	case CodeUnrecognizedChain:
		return status.ErrUnregisteredNetwork
	}
	return nil
}

func ErrorCode(err error) int {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return 0
}

// RequestAccounts asks the wallet for account access (may prompt the user).
func RequestAccounts(ctx context.Context, p Provider) ([]string, error) {
	return requestStrings(ctx, p, MethodRequestAccounts)
}

// Accounts returns already-authorized accounts without prompting.
func Accounts(ctx context.Context, p Provider) ([]string, error) {
	return requestStrings(ctx, p, MethodAccounts)
}

func ChainID(ctx context.Context, p Provider) (string, error) {
	raw, err := p.Request(ctx, MethodChainID)
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("decode %s result: %w", MethodChainID, err)
	}
	return id, nil
}

func SwitchChain(ctx context.Context, p Provider, chainID string) error {
	_, err := p.Request(ctx, MethodSwitchChain, SwitchChainParams{ChainID: chainID})
	return err
}

func requestStrings(ctx context.Context, p Provider, method string) ([]string, error) {
	raw, err := p.Request(ctx, method)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return out, nil
}

func switchParams(params []any) (SwitchChainParams, error) {
	if len(params) != 1 {
		return SwitchChainParams{}, &ProviderError{Code: -32602, Message: "expected a single chain parameter"}
	}
	switch p := params[0].(type) {
	case SwitchChainParams:
		return p, nil
	case *SwitchChainParams:
		return *p, nil
	case map[string]any:
		id, _ := p["chainId"].(string)
		return SwitchChainParams{ChainID: id}, nil
	}
	return SwitchChainParams{}, &ProviderError{Code: -32602, Message: "invalid chain parameter"}
}
