package ledger

import (
	"context"
	"fmt"
	"strings"

	"ticket-market/models"
)

// Mode selects which ledger implementation backs the marketplace.
type Mode string

const (
	ModeSimulation Mode = "simulation"
	ModeOnChain    Mode = "onchain"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimulation, "":
		return ModeSimulation, nil
	case ModeOnChain, "on-chain", "ethers":
		return ModeOnChain, nil
	}
	return "", fmt.Errorf("unsupported ledger mode: %s", s)
}

// Client is the capability set the marketplace needs from a ticket ledger.
// Every mutating call takes the caller explicitly and fails when it is empty.
type Client interface {
	// Mode returns the ledger mode type
	Mode() Mode

	GetAllTickets(ctx context.Context) ([]models.Ticket, error)
	GetMyTickets(ctx context.Context, owner string) ([]models.Ticket, error)
	GetTicketsForSale(ctx context.Context) ([]models.Ticket, error)

	// Mint issues a new ticket owned by caller and returns its id.
	Mint(ctx context.Context, caller, name, eventName, price string) (string, error)
	ListForSale(ctx context.Context, caller, id, price string) error
	CancelSale(ctx context.Context, caller, id string) error
	Buy(ctx context.Context, caller, id, price string) error

	// Close gracefully closes any connections
	Close(ctx context.Context) error
}

// Rebinder is implemented by clients holding chain-specific bindings that
// must be rebuilt after the wallet switches networks.
type Rebinder interface {
	Rebind(ctx context.Context, chainID uint64) error
}

// ClientFactory creates ledger clients based on mode
type ClientFactory interface {
	CreateClient(ctx context.Context, mode Mode, config any) (Client, error)
	SupportedModes() []Mode
}
