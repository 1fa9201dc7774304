package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"

	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"
	"ticket-market/utils"
)

// resolveConcurrency bounds the number of getTicket calls in flight during a
// bulk fetch.
const resolveConcurrency = 8

// Binder builds the contract binding for a chain.
type Binder func(ctx context.Context, chainID uint64) (Contract, error)

// OnChain delegates every capability to the deployed ticket contract.
type OnChain struct {
	binder  Binder
	breaker *utils.CircuitBreaker

	mu       sync.RWMutex
	contract Contract
	chainID  uint64
}

// NewOnChain binds the contract for chainID. A nil breaker gets the default
// settings with UpstreamHealthy as its success filter.
func NewOnChain(ctx context.Context, binder Binder, chainID uint64, breaker *utils.CircuitBreaker) (*OnChain, error) {
	if breaker == nil {
		breaker = utils.NewCircuitBreakerWithSettings("ledger-rpc", utils.BreakerSettings{
			IsSuccessful: UpstreamHealthy,
		})
	}
	o := &OnChain{binder: binder, breaker: breaker}
	if err := o.Rebind(ctx, chainID); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OnChain) Mode() Mode {
	return ModeOnChain
}

func (o *OnChain) Close(context.Context) error {
	return nil
}

// Rebind replaces the contract binding after a chain change.
func (o *OnChain) Rebind(ctx context.Context, chainID uint64) error {
	contract, err := o.binder(ctx, chainID)
	if err != nil {
		return fmt.Errorf("bind ticket contract on chain %d: %w", chainID, err)
	}

	o.mu.Lock()
	o.contract = contract
	o.chainID = chainID
	o.mu.Unlock()

	slog.Info("Ticket contract bound", "chain_id", chainID, "account", contract.Account().Hex())
	return nil
}

func (o *OnChain) current() Contract {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.contract
}

func (o *OnChain) GetAllTickets(ctx context.Context) (tickets []models.Ticket, err error) {
	defer track("get_all_tickets", ModeOnChain, time.Now(), &err)

	ids, err := o.ids(ctx, "getAllTickets")
	if err != nil {
		return nil, err
	}
	return o.resolve(ctx, ids)
}

func (o *OnChain) GetMyTickets(ctx context.Context, owner string) (tickets []models.Ticket, err error) {
	defer track("get_my_tickets", ModeOnChain, time.Now(), &err)

	ids, err := o.ids(ctx, "getAllTickets")
	if err != nil {
		return nil, err
	}
	all, err := o.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	mine := make([]models.Ticket, 0, len(all))
	for _, t := range all {
		if t.OwnedBy(owner) {
			mine = append(mine, t)
		}
	}
	return mine, nil
}

func (o *OnChain) GetTicketsForSale(ctx context.Context) (tickets []models.Ticket, err error) {
	defer track("get_tickets_for_sale", ModeOnChain, time.Now(), &err)

	ids, err := o.ids(ctx, "getTicketsForSale")
	if err != nil {
		return nil, err
	}
	resolved, err := o.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	forSale := make([]models.Ticket, 0, len(resolved))
	for _, t := range resolved {
		if t.IsForSale {
			forSale = append(forSale, t)
		}
	}
	return forSale, nil
}

func (o *OnChain) Mint(ctx context.Context, caller, name, eventName, price string) (id string, err error) {
	defer track("mint", ModeOnChain, time.Now(), &err)

	if err := o.checkCaller(caller); err != nil {
		return "", err
	}
	amount, err := ToMinimalUnits(price)
	if err != nil {
		return "", err
	}

	receipt, err := o.transact(ctx, nil, "mintTicket", name, eventName, amount)
	if err != nil {
		return "", err
	}
	tokenID, err := MintedTokenID(receipt)
	if err != nil {
		return "", err
	}

	slog.Info("Ticket minted on chain", "id", tokenID.String(), "tx", receipt.TxHash.Hex())
	return tokenID.String(), nil
}

func (o *OnChain) ListForSale(ctx context.Context, caller, id, price string) (err error) {
	defer track("list_for_sale", ModeOnChain, time.Now(), &err)

	if err := o.checkCaller(caller); err != nil {
		return err
	}
	amount, err := ToMinimalUnits(price)
	if err != nil {
		return err
	}
	tokenID, t, err := o.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !t.OwnedBy(caller) {
		return fmt.Errorf("list ticket %s: %w", id, status.ErrNotOwner)
	}

	_, err = o.transact(ctx, nil, "listTicketForSale", tokenID, amount)
	return err
}

func (o *OnChain) CancelSale(ctx context.Context, caller, id string) (err error) {
	defer track("cancel_sale", ModeOnChain, time.Now(), &err)

	if err := o.checkCaller(caller); err != nil {
		return err
	}
	tokenID, t, err := o.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !t.OwnedBy(caller) {
		return fmt.Errorf("cancel sale of ticket %s: %w", id, status.ErrNotOwner)
	}

	_, err = o.transact(ctx, nil, "cancelTicketSale", tokenID)
	return err
}

// Buy sends price as the transaction value. The contract decides whether it
// covers the resale price.
func (o *OnChain) Buy(ctx context.Context, caller, id, price string) (err error) {
	defer track("buy", ModeOnChain, time.Now(), &err)

	if err := o.checkCaller(caller); err != nil {
		return err
	}
	value, err := ToMinimalUnits(price)
	if err != nil {
		return err
	}
	tokenID, t, err := o.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !t.IsForSale {
		return fmt.Errorf("buy ticket %s: %w", id, status.ErrNotForSale)
	}

	_, err = o.transact(ctx, value, "buyTicket", tokenID)
	return err
}

// checkCaller requires a caller that matches the signing account, since the
// contract only ever sees the signer.
func (o *OnChain) checkCaller(caller string) error {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return status.ErrNoCaller
	}
	addr, err := utils.ParseAddress(caller)
	if err != nil {
		return err
	}
	signer := o.current().Account()
	if addr != signer {
		return fmt.Errorf("%w: %s cannot sign for %s", status.ErrInvalidAddress, signer.Hex(), caller)
	}
	return nil
}

// UpstreamHealthy reports whether err leaves the RPC endpoint in good
// standing. Only transport and node failures count against the breaker:
// reverts, JSON-RPC error replies, missing tickets and cancelled requests
// say nothing about the endpoint.
func UpstreamHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, status.ErrNotFound) || errors.Is(err, bind.ErrNoCode) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func (o *OnChain) call(ctx context.Context, method string, args ...any) ([]any, error) {
	contract := o.current()
	var out []any
	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = contract.Call(ctx, method, args...)
		return err
	})
	return out, err
}

// transact submits a transaction and accepts it only when the mined receipt
// reports success.
func (o *OnChain) transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	contract := o.current()
	var receipt *types.Receipt
	err := o.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = contract.Transact(ctx, value, method, args...)
		return err
	})
	if err != nil {
		if errors.Is(err, status.ErrCircuitOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", method, status.ErrTransactionFailed, err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		hash := ""
		if receipt != nil {
			hash = receipt.TxHash.Hex()
		}
		return nil, fmt.Errorf("%s %s reverted: %w", method, hash, status.ErrTransactionFailed)
	}
	return receipt, nil
}

func (o *OnChain) ids(ctx context.Context, method string) ([]*big.Int, error) {
	out, err := o.call(ctx, method)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected result %v", method, out)
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, out[0])
	}
	return ids, nil
}

// resolve fetches each id individually. Ids that fail to resolve are left
// out of the result.
func (o *OnChain) resolve(ctx context.Context, ids []*big.Int) ([]models.Ticket, error) {
	results := make([]*models.Ticket, len(ids))

	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			t, err := o.ticket(ctx, id)
			if err != nil {
				slog.Warn("Skipping unresolvable ticket", "id", id.String(), "error", err)
				monitoring.TrackResolutionFailure(string(ModeOnChain))
				return nil
			}
			results[i] = &t
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tickets := make([]models.Ticket, 0, len(results))
	for _, t := range results {
		if t != nil {
			tickets = append(tickets, *t)
		}
	}
	return tickets, nil
}

func (o *OnChain) lookup(ctx context.Context, id string) (*big.Int, models.Ticket, error) {
	tokenID, ok := new(big.Int).SetString(strings.TrimSpace(id), 10)
	if !ok || tokenID.Sign() < 0 {
		return nil, models.Ticket{}, fmt.Errorf("ticket %q: %w", id, status.ErrNotFound)
	}
	t, err := o.ticket(ctx, tokenID)
	if err != nil {
		if errors.Is(err, status.ErrCircuitOpen) {
			return nil, models.Ticket{}, err
		}
		return nil, models.Ticket{}, fmt.Errorf("ticket %s: %w: %w", id, status.ErrNotFound, err)
	}
	return tokenID, t, nil
}

func (o *OnChain) ticket(ctx context.Context, id *big.Int) (models.Ticket, error) {
	out, err := o.call(ctx, "getTicket", id)
	if err != nil {
		return models.Ticket{}, err
	}
	return decodeTicket(id, out)
}

func decodeTicket(id *big.Int, out []any) (models.Ticket, error) {
	if len(out) != 6 {
		return models.Ticket{}, fmt.Errorf("getTicket(%s): expected 6 values, got %d", id, len(out))
	}
	name, ok1 := out[0].(string)
	eventName, ok2 := out[1].(string)
	price, ok3 := out[2].(*big.Int)
	owner, ok4 := out[3].(common.Address)
	isForSale, ok5 := out[4].(bool)
	resale, ok6 := out[5].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return models.Ticket{}, fmt.Errorf("getTicket(%s): unexpected result types", id)
	}
	if owner == (common.Address{}) {
		return models.Ticket{}, fmt.Errorf("getTicket(%s): %w", id, status.ErrNotFound)
	}

	t := models.Ticket{
		ID:        id.String(),
		Name:      name,
		EventName: eventName,
		FaceValue: FromMinimalUnits(price),
		Owner:     owner.Hex(),
	}
	if isForSale {
		t = t.ListedAt(FromMinimalUnits(resale))
	}
	return t, nil
}

// MintedTokenID recovers the new token id from the Transfer event emitted by
// a mint (from the zero address).
func MintedTokenID(receipt *types.Receipt) (*big.Int, error) {
	if receipt != nil {
		topic := TransferTopic()
		for _, l := range receipt.Logs {
			if l == nil || len(l.Topics) != 4 || l.Topics[0] != topic {
				continue
			}
			if l.Topics[1] != (common.Hash{}) {
				continue
			}
			return new(big.Int).SetBytes(l.Topics[3].Bytes()), nil
		}
	}
	return nil, status.ErrTokenIDMissing
}
