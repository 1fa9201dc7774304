package session

import (
	"fmt"

	"ticket-market/internal/status"
	"ticket-market/models"
)

// Gate compares the session's network with the one the marketplace requires.
// It holds no state of its own.
type Gate struct {
	required models.Network
}

func NewGate(required models.Network) *Gate {
	return &Gate{required: required}
}

func (g *Gate) Required() models.Network {
	return g.required
}

func (g *Gate) Matches(s models.Session) bool {
	return s.HasNetwork && s.NetworkID == g.required.ID
}

// Check returns nil when mutating marketplace operations are allowed.
func (g *Gate) Check(s models.Session) error {
	if !s.IsConnected() {
		return status.ErrNotConnected
	}
	if !g.Matches(s) {
		return fmt.Errorf("%w: switch to %s", status.ErrWrongNetwork, g.required.Name)
	}
	return nil
}

type GateStatus struct {
	Connected bool            `json:"connected"`
	Matches   bool            `json:"matches"`
	Required  models.Network  `json:"required"`
	Current   *models.Network `json:"current,omitempty"`
	CurrentID uint64          `json:"current_id,omitempty"`
	// CanSwitch is true when the only action on offer is a network switch.
	CanSwitch bool `json:"can_switch"`
}

func (g *Gate) Status(s models.Session) GateStatus {
	st := GateStatus{
		Connected: s.IsConnected(),
		Matches:   g.Matches(s),
		Required:  g.required,
	}
	if s.HasNetwork {
		st.CurrentID = s.NetworkID
		if n, ok := models.NetworkByID(s.NetworkID); ok {
			st.Current = &n
		}
	}
	st.CanSwitch = st.Connected && !st.Matches
	return st
}
