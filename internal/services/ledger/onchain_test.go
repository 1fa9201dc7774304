package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-market/internal/status"
	"ticket-market/utils"
)

type fakeTicket struct {
	name, event string
	price       *big.Int
	owner       common.Address
	forSale     bool
	resale      *big.Int
}

// fakeContract mimics the deployed ticket contract in memory.
type fakeContract struct {
	mu      sync.Mutex
	account common.Address
	tickets map[int64]*fakeTicket
	order   []int64
	nextID  int64

	broken       map[int64]bool
	callErr      error
	txErr        error
	revert       bool
	omitTransfer bool

	transacts []string
	lastValue *big.Int
}

func newFakeContract(account string) *fakeContract {
	return &fakeContract{
		account: common.HexToAddress(account),
		tickets: make(map[int64]*fakeTicket),
		broken:  make(map[int64]bool),
	}
}

func eth(s string) *big.Int {
	v, err := ToMinimalUnits(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (f *fakeContract) add(owner, name, event, price string, resale string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := &fakeTicket{name: name, event: event, price: eth(price), owner: common.HexToAddress(owner), resale: big.NewInt(0)}
	if resale != "" {
		t.forSale = true
		t.resale = eth(resale)
	}
	f.tickets[f.nextID] = t
	f.order = append(f.order, f.nextID)
	return f.nextID
}

func (f *fakeContract) Account() common.Address { return f.account }

func (f *fakeContract) Call(_ context.Context, method string, args ...any) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}

	switch method {
	case "getAllTickets", "getTicketsForSale":
		ids := []*big.Int{}
		for _, id := range f.order {
			// the contract's sale index is allowed to lag behind
			ids = append(ids, big.NewInt(id))
		}
		return []any{ids}, nil
	case "getTicket":
		id := args[0].(*big.Int).Int64()
		if f.broken[id] {
			return nil, fmt.Errorf("execution reverted")
		}
		t, ok := f.tickets[id]
		if !ok {
			return []any{"", "", big.NewInt(0), common.Address{}, false, big.NewInt(0)}, nil
		}
		return []any{t.name, t.event, t.price, t.owner, t.forSale, t.resale}, nil
	}
	return nil, fmt.Errorf("unknown method %s", method)
}

func (f *fakeContract) Transact(_ context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts = append(f.transacts, method)
	f.lastValue = value
	if f.txErr != nil {
		return nil, f.txErr
	}

	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0xabc")}
	if f.revert {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, nil
	}

	switch method {
	case "mintTicket":
		f.nextID++
		f.tickets[f.nextID] = &fakeTicket{
			name: args[0].(string), event: args[1].(string), price: args[2].(*big.Int),
			owner: f.account, resale: big.NewInt(0),
		}
		f.order = append(f.order, f.nextID)
		if !f.omitTransfer {
			receipt.Logs = append(receipt.Logs, transferLog(common.Address{}, f.account, f.nextID))
		}
	case "listTicketForSale":
		t := f.tickets[args[0].(*big.Int).Int64()]
		t.forSale, t.resale = true, args[1].(*big.Int)
	case "cancelTicketSale":
		t := f.tickets[args[0].(*big.Int).Int64()]
		t.forSale, t.resale = false, big.NewInt(0)
	case "buyTicket":
		t := f.tickets[args[0].(*big.Int).Int64()]
		t.owner, t.forSale, t.resale = f.account, false, big.NewInt(0)
	}
	return receipt, nil
}

func transferLog(from, to common.Address, id int64) *types.Log {
	return &types.Log{Topics: []common.Hash{
		TransferTopic(),
		common.BytesToHash(from.Bytes()),
		common.BytesToHash(to.Bytes()),
		common.BigToHash(big.NewInt(id)),
	}}
}

func setupTestOnChain(t *testing.T, contract *fakeContract) *OnChain {
	t.Helper()
	binder := func(context.Context, uint64) (Contract, error) { return contract, nil }
	client, err := NewOnChain(context.Background(), binder, 11155111, nil)
	require.NoError(t, err)
	return client
}

func TestOnChain_GetAllTicketsDecodes(t *testing.T) {
	contract := newFakeContract(alice)
	contract.add(alice, "VIP Pass", "ETH Global Conference 2025", "0.5", "0.75")
	contract.add(bob, "Backstage Pass", "NFT Music Festival", "1", "")
	client := setupTestOnChain(t, contract)

	all, err := client.GetAllTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "VIP Pass", all[0].Name)
	assert.Equal(t, "ETH Global Conference 2025", all[0].EventName)
	assert.Equal(t, "0.5", all[0].FaceValue)
	assert.Equal(t, alice, all[0].Owner)
	assert.True(t, all[0].IsForSale)
	assert.Equal(t, "0.75", *all[0].ResalePrice)

	assert.Equal(t, "1.0", all[1].FaceValue)
	assert.False(t, all[1].IsForSale)
	assert.Nil(t, all[1].ResalePrice)
}

func TestOnChain_PartialResolutionExcludesFailedIDs(t *testing.T) {
	contract := newFakeContract(alice)
	contract.add(alice, "A", "E", "0.1", "")
	broken := contract.add(alice, "B", "E", "0.1", "0.2")
	contract.add(bob, "C", "E", "0.1", "0.3")
	contract.broken[broken] = true
	client := setupTestOnChain(t, contract)

	all, err := client.GetAllTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "3", all[1].ID)

	forSale, err := client.GetTicketsForSale(context.Background())
	require.NoError(t, err)
	require.Len(t, forSale, 1)
	assert.Equal(t, "3", forSale[0].ID)
}

func TestOnChain_GetMyTickets(t *testing.T) {
	contract := newFakeContract(alice)
	contract.add(alice, "A", "E", "0.1", "")
	contract.add(bob, "B", "E", "0.1", "")
	client := setupTestOnChain(t, contract)

	mine, err := client.GetMyTickets(context.Background(), "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "A", mine[0].Name)
}

func TestOnChain_MintRecoversTokenID(t *testing.T) {
	contract := newFakeContract(alice)
	contract.add(bob, "existing", "E", "0.1", "")
	client := setupTestOnChain(t, contract)

	id, err := client.Mint(context.Background(), alice, "VIP Pass", "Conf", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "2", id)
	assert.Equal(t, eth("0.5"), contract.tickets[2].price)

	mine, err := client.GetMyTickets(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "0.5", mine[0].FaceValue)
	assert.False(t, mine[0].IsForSale)
}

func TestOnChain_MintWithoutTransferEvent(t *testing.T) {
	contract := newFakeContract(alice)
	contract.omitTransfer = true
	client := setupTestOnChain(t, contract)

	_, err := client.Mint(context.Background(), alice, "VIP Pass", "Conf", "0.5")
	assert.ErrorIs(t, err, status.ErrTokenIDMissing)
	assert.NotErrorIs(t, err, status.ErrTransactionFailed)
}

func TestOnChain_FailedTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("reverted receipt", func(t *testing.T) {
		contract := newFakeContract(alice)
		contract.revert = true
		client := setupTestOnChain(t, contract)

		_, err := client.Mint(ctx, alice, "VIP Pass", "Conf", "0.5")
		assert.ErrorIs(t, err, status.ErrTransactionFailed)
	})

	t.Run("submission error", func(t *testing.T) {
		contract := newFakeContract(alice)
		id := contract.add(alice, "A", "E", "0.1", "")
		contract.txErr = errors.New("insufficient funds for gas")
		client := setupTestOnChain(t, contract)

		err := client.ListForSale(ctx, alice, fmt.Sprint(id), "0.2")
		assert.ErrorIs(t, err, status.ErrTransactionFailed)
		assert.False(t, contract.tickets[id].forSale)
	})
}

func TestOnChain_MutationsRequireCaller(t *testing.T) {
	ctx := context.Background()
	contract := newFakeContract(alice)
	id := fmt.Sprint(contract.add(alice, "A", "E", "0.1", "0.2"))
	client := setupTestOnChain(t, contract)

	_, err := client.Mint(ctx, "", "A", "E", "0.1")
	assert.ErrorIs(t, err, status.ErrNoCaller)
	assert.ErrorIs(t, client.ListForSale(ctx, "", id, "0.3"), status.ErrNoCaller)
	assert.ErrorIs(t, client.CancelSale(ctx, "", id), status.ErrNoCaller)
	assert.ErrorIs(t, client.Buy(ctx, "", id, "0.2"), status.ErrNoCaller)

	assert.ErrorIs(t, client.CancelSale(ctx, bob, id), status.ErrInvalidAddress)
	assert.Empty(t, contract.transacts)
}

func TestOnChain_Preconditions(t *testing.T) {
	ctx := context.Background()
	contract := newFakeContract(alice)
	bobs := fmt.Sprint(contract.add(bob, "B", "E", "0.1", ""))
	client := setupTestOnChain(t, contract)

	assert.ErrorIs(t, client.ListForSale(ctx, alice, bobs, "1"), status.ErrNotOwner)
	assert.ErrorIs(t, client.CancelSale(ctx, alice, bobs), status.ErrNotOwner)
	assert.ErrorIs(t, client.Buy(ctx, alice, bobs, "1"), status.ErrNotForSale)
	assert.ErrorIs(t, client.Buy(ctx, alice, "99", "1"), status.ErrNotFound)
	assert.ErrorIs(t, client.Buy(ctx, alice, "not-a-number", "1"), status.ErrNotFound)
	assert.Empty(t, contract.transacts)
}

func TestOnChain_ListCancelBuy(t *testing.T) {
	ctx := context.Background()
	contract := newFakeContract(alice)
	mine := fmt.Sprint(contract.add(alice, "A", "E", "0.5", ""))
	theirs := fmt.Sprint(contract.add(bob, "B", "E", "1", "1.5"))
	client := setupTestOnChain(t, contract)

	require.NoError(t, client.ListForSale(ctx, alice, mine, "0.75"))
	forSale, err := client.GetTicketsForSale(ctx)
	require.NoError(t, err)
	require.Len(t, forSale, 2)
	assert.Equal(t, "0.75", *forSale[0].ResalePrice)

	require.NoError(t, client.CancelSale(ctx, alice, mine))
	forSale, err = client.GetTicketsForSale(ctx)
	require.NoError(t, err)
	require.Len(t, forSale, 1)
	assert.Equal(t, theirs, forSale[0].ID)

	require.NoError(t, client.Buy(ctx, alice, theirs, "1.5"))
	assert.Equal(t, eth("1.5"), contract.lastValue)

	owned, err := client.GetMyTickets(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
	assert.Equal(t, []string{"listTicketForSale", "cancelTicketSale", "buyTicket"}, contract.transacts)
}

func TestOnChain_BreakerOpensOnRPCFailures(t *testing.T) {
	contract := newFakeContract(alice)
	contract.callErr = errors.New("connection refused")
	breaker := utils.NewCircuitBreakerWithSettings("test", utils.BreakerSettings{
		MaxRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})
	binder := func(context.Context, uint64) (Contract, error) { return contract, nil }
	client, err := NewOnChain(context.Background(), binder, 1, breaker)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := client.GetAllTickets(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, status.ErrCircuitOpen)
	}

	_, err = client.GetAllTickets(context.Background())
	assert.ErrorIs(t, err, status.ErrCircuitOpen)
}

func TestOnChain_UnresolvableIDsKeepLedgerAvailable(t *testing.T) {
	ctx := context.Background()
	contract := newFakeContract(alice)
	var healthy []int64
	for i := 0; i < 25; i++ {
		id := contract.add(alice, fmt.Sprintf("T%d", i), "E", "0.1", "")
		if i%3 == 0 {
			healthy = append(healthy, id)
			continue
		}
		contract.broken[id] = true
	}
	client := setupTestOnChain(t, contract)

	for i := 0; i < 3; i++ {
		all, err := client.GetAllTickets(ctx)
		require.NoError(t, err)
		assert.Len(t, all, len(healthy))
	}
	assert.Equal(t, utils.StateClosed, client.breaker.State())

	require.NoError(t, client.ListForSale(ctx, alice, fmt.Sprint(healthy[1]), "0.2"))
	require.NoError(t, client.CancelSale(ctx, alice, fmt.Sprint(healthy[1])))
	assert.ErrorIs(t, client.Buy(ctx, alice, "999", "1"), status.ErrNotFound)
	assert.Equal(t, utils.StateClosed, client.breaker.State())
}

func TestOnChain_CancelledQueriesKeepBreakerClosed(t *testing.T) {
	contract := newFakeContract(alice)
	contract.callErr = context.Canceled
	client := setupTestOnChain(t, contract)

	for i := 0; i < 30; i++ {
		_, err := client.GetAllTickets(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, utils.StateClosed, client.breaker.State())
}

func TestOnChain_DefaultBreakerStillTripsOnTransportErrors(t *testing.T) {
	contract := newFakeContract(alice)
	contract.callErr = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
	client := setupTestOnChain(t, contract)

	var err error
	for i := 0; i < 25; i++ {
		_, err = client.GetAllTickets(context.Background())
	}
	assert.ErrorIs(t, err, status.ErrCircuitOpen)
}

type jsonRPCError struct{ code int }

func (e jsonRPCError) Error() string  { return "insufficient funds for gas * price + value" }
func (e jsonRPCError) ErrorCode() int { return e.code }

func TestUpstreamHealthy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"cancelled", fmt.Errorf("getTicket: %w", context.Canceled), true},
		{"deadline", context.DeadlineExceeded, true},
		{"missing ticket", fmt.Errorf("getTicket(7): %w", status.ErrNotFound), true},
		{"revert", errors.New("execution reverted: ERC721: invalid token ID"), true},
		{"json-rpc reply", jsonRPCError{code: -32000}, true},
		{"transport", errors.New("Post \"http://node\": EOF"), false},
		{"refused", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UpstreamHealthy(tt.err))
		})
	}
}

func TestOnChain_Rebind(t *testing.T) {
	first := newFakeContract(alice)
	first.add(alice, "on sepolia", "E", "0.1", "")
	second := newFakeContract(alice)
	second.add(alice, "on polygon", "E", "0.1", "")

	bound := map[uint64]Contract{11155111: first, 137: second}
	binder := func(_ context.Context, chainID uint64) (Contract, error) {
		c, ok := bound[chainID]
		if !ok {
			return nil, errors.New("no deployment")
		}
		return c, nil
	}

	client, err := NewOnChain(context.Background(), binder, 11155111, nil)
	require.NoError(t, err)

	require.NoError(t, client.Rebind(context.Background(), 137))
	all, err := client.GetAllTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "on polygon", all[0].Name)

	assert.Error(t, client.Rebind(context.Background(), 5))
	all, err = client.GetAllTickets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "on polygon", all[0].Name)
}

func TestMintedTokenID(t *testing.T) {
	owner := common.HexToAddress(alice)

	receipt := &types.Receipt{Logs: []*types.Log{
		// a plain transfer is not a mint
		transferLog(common.HexToAddress(bob), owner, 7),
		{Topics: []common.Hash{common.HexToHash("0x01")}},
		transferLog(common.Address{}, owner, 42),
	}}
	id, err := MintedTokenID(receipt)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.Int64())

	_, err = MintedTokenID(&types.Receipt{})
	assert.ErrorIs(t, err, status.ErrTokenIDMissing)
	_, err = MintedTokenID(nil)
	assert.ErrorIs(t, err, status.ErrTokenIDMissing)
}

func TestTicketABI_HasContractSurface(t *testing.T) {
	for _, method := range []string{"getAllTickets", "getTicketsForSale", "getTicket", "mintTicket", "listTicketForSale", "cancelTicketSale", "buyTicket"} {
		_, ok := ticketABI.Methods[method]
		assert.True(t, ok, method)
	}
	assert.True(t, ticketABI.Methods["buyTicket"].IsPayable())
	assert.Len(t, ticketABI.Methods["getTicket"].Outputs, 6)
}
