package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-market/internal/status"
)

const (
	alice = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	bob   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func TestProviderError_MapsToTaxonomy(t *testing.T) {
	rejected := &ProviderError{Code: CodeUserRejected, Message: "no"}
	unknown := &ProviderError{Code: CodeUnrecognizedChain, Message: "no"}
	other := &ProviderError{Code: -32603, Message: "internal"}

	assert.ErrorIs(t, rejected, status.ErrUserRejected)
	assert.ErrorIs(t, unknown, status.ErrUnregisteredNetwork)
	assert.False(t, errors.Is(other, status.ErrUserRejected))
	assert.False(t, errors.Is(other, status.ErrUnregisteredNetwork))

	wrapped := errors.Join(errors.New("switch"), unknown)
	assert.Equal(t, CodeUnrecognizedChain, ErrorCode(wrapped))
	assert.Equal(t, 0, ErrorCode(errors.New("plain")))
}

func TestEmitter_UnsubscribeIsIdempotent(t *testing.T) {
	e := newEmitter()
	calls := 0
	unsub := e.on(EventChainChanged, func(any) { calls++ })
	e.on(EventChainChanged, func(any) { calls += 10 })

	e.emit(EventChainChanged, "0x1")
	assert.Equal(t, 11, calls)

	unsub()
	unsub()
	assert.Equal(t, 1, e.count(EventChainChanged))

	e.emit(EventChainChanged, "0x1")
	assert.Equal(t, 21, calls)
}

func TestSimProvider_AccountsHiddenUntilRequested(t *testing.T) {
	ctx := context.Background()
	p := NewSimProvider("0xaa36a7", alice)

	accounts, err := Accounts(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	accounts, err = RequestAccounts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, accounts)

	accounts, err = Accounts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, accounts)

	chain, err := ChainID(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "0xaa36a7", chain)
}

func TestSimProvider_RejectsWhenUserDeclines(t *testing.T) {
	p := NewSimProvider("0xaa36a7", alice)
	p.SetRejecting(true)

	_, err := RequestAccounts(context.Background(), p)
	assert.ErrorIs(t, err, status.ErrUserRejected)
	assert.Equal(t, CodeUserRejected, ErrorCode(err))
}

func TestSimProvider_SwitchChain(t *testing.T) {
	ctx := context.Background()
	p := NewSimProvider("0x1", alice)

	var got []any
	unsub := p.On(EventChainChanged, func(payload any) { got = append(got, payload) })
	defer unsub()

	require.NoError(t, SwitchChain(ctx, p, "0xaa36a7"))
	assert.Equal(t, []any{"0xaa36a7"}, got)

	// switching to the current chain is a no-op
	require.NoError(t, SwitchChain(ctx, p, "0xaa36a7"))
	assert.Len(t, got, 1)

	err := SwitchChain(ctx, p, "0x2a")
	assert.ErrorIs(t, err, status.ErrUnregisteredNetwork)
	assert.Equal(t, CodeUnrecognizedChain, ErrorCode(err))

	chain, err := ChainID(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "0xaa36a7", chain)
}

func TestSimProvider_SwitchChainAcceptsDecodedParams(t *testing.T) {
	p := NewSimProvider("0x1", alice)

	var params map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"chainId":"0x89"}`), &params))
	_, err := p.Request(context.Background(), MethodSwitchChain, params)
	require.NoError(t, err)

	chain, err := ChainID(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "0x89", chain)
}

func TestSimProvider_AccountsChangedOnlyForAuthorizedSite(t *testing.T) {
	p := NewSimProvider("0x1", alice)

	var events [][]string
	p.On(EventAccountsChanged, func(payload any) { events = append(events, payload.([]string)) })

	p.SetAccounts(bob)
	assert.Empty(t, events)

	p.Authorize()
	p.SetAccounts(alice, bob)
	p.SetAccounts()
	assert.Equal(t, [][]string{{alice, bob}, {}}, events)

	accounts, err := Accounts(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSimProvider_UnsupportedMethod(t *testing.T) {
	p := NewSimProvider("0x1")
	_, err := p.Request(context.Background(), "eth_sign")
	assert.Equal(t, CodeUnsupported, ErrorCode(err))
}
