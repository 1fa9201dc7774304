package models

import (
	"strings"
)

// Ticket is an NFT ticket as seen by the marketplace. Prices are decimal
// currency strings (e.g. "0.5" ETH), never floats.
type Ticket struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	EventName   string  `json:"event"`
	FaceValue   string  `json:"price"`
	Owner       string  `json:"owner"`
	IsForSale   bool    `json:"isForSale"`
	ResalePrice *string `json:"resalePrice"`
	TokenURI    string  `json:"tokenURI,omitempty"`
}

// Valid reports whether the sale fields are consistent and the ticket has an owner.
func (t Ticket) Valid() bool {
	if t.ID == "" || t.Owner == "" {
		return false
	}
	return t.IsForSale == (t.ResalePrice != nil)
}

func (t Ticket) OwnedBy(address string) bool {
	return address != "" && strings.EqualFold(t.Owner, address)
}

// ListedAt returns a copy of the ticket with an active resale listing.
func (t Ticket) ListedAt(price string) Ticket {
	p := price
	t.IsForSale = true
	t.ResalePrice = &p
	return t
}

// Unlisted returns a copy of the ticket with the listing cleared.
func (t Ticket) Unlisted() Ticket {
	t.IsForSale = false
	t.ResalePrice = nil
	return t
}

// TransferTo returns a copy owned by owner with the listing cleared.
func (t Ticket) TransferTo(owner string) Ticket {
	t = t.Unlisted()
	t.Owner = owner
	return t
}

// Clone deep-copies the resale price so callers cannot mutate shared state.
func (t Ticket) Clone() Ticket {
	if t.ResalePrice != nil {
		p := *t.ResalePrice
		t.ResalePrice = &p
	}
	return t
}

func CloneTickets(tickets []Ticket) []Ticket {
	out := make([]Ticket, len(tickets))
	for i, t := range tickets {
		out[i] = t.Clone()
	}
	return out
}
