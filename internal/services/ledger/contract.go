package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TicketABI is the interface of the deployed ticket contract.
const TicketABI = `[
 {"type":"function","name":"getAllTickets","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
 {"type":"function","name":"getTicketsForSale","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
 {"type":"function","name":"getTicket","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[
  {"name":"name","type":"string"},{"name":"event","type":"string"},{"name":"price","type":"uint256"},
  {"name":"owner","type":"address"},{"name":"isForSale","type":"bool"},{"name":"resalePrice","type":"uint256"}]},
 {"type":"function","name":"mintTicket","stateMutability":"nonpayable","inputs":[
  {"name":"name","type":"string"},{"name":"event","type":"string"},{"name":"price","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"listTicketForSale","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"cancelTicketSale","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"buyTicket","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"event","name":"Transfer","anonymous":false,"inputs":[
  {"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

var ticketABI = mustParseABI(TicketABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse ticket ABI: %v", err))
	}
	return parsed
}

// TransferTopic is the log topic of the ERC-721 Transfer event.
func TransferTopic() common.Hash {
	return ticketABI.Events["Transfer"].ID
}

// Contract is the subset of a bound contract the ledger client needs.
// Transact waits for the transaction to be mined and returns its receipt.
type Contract interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
	Transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error)
	Account() common.Address
}

// Signer supplies the account and transaction options used for writes.
type Signer interface {
	Address() common.Address
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

type boundContract struct {
	contract *bind.BoundContract
	backend  *ethclient.Client
	signer   Signer
}

// NewBoundContract binds the ticket ABI at address on backend.
func NewBoundContract(address common.Address, backend *ethclient.Client, signer Signer) Contract {
	return &boundContract{
		contract: bind.NewBoundContract(address, ticketABI, backend, backend, backend),
		backend:  backend,
		signer:   signer,
	}
}

func (c *boundContract) Account() common.Address {
	return c.signer.Address()
}

func (c *boundContract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx, From: c.signer.Address()}
	if err := c.contract.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}

func (c *boundContract) Transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	opts, err := c.signer.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("transact %s: %w", method, err)
	}
	opts.Context = ctx
	opts.Value = value

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s (%s): %w", method, tx.Hash().Hex(), err)
	}
	return receipt, nil
}
