package models

import (
	"time"
)

type SessionState string

const (
	SessionDisconnected SessionState = "disconnected"
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
)

// Session is a point-in-time snapshot of the wallet binding.
type Session struct {
	Account    string       `json:"account,omitempty"`
	NetworkID  uint64       `json:"network_id,omitempty"`
	HasNetwork bool         `json:"has_network"`
	State      SessionState `json:"state"`
}

func (s Session) IsConnected() bool {
	return s.Account != ""
}

type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
	LevelInfo    NotificationLevel = "info"
)

type Notification struct {
	ID        string            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	Account   string            `json:"account,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Activity is a journal entry for a successful marketplace action.
type Activity struct {
	Action    string    `json:"action" db:"action"` // mint, list, cancel, buy
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	Account   string    `json:"account" db:"account"`
	Price     string    `json:"price,omitempty" db:"price"`
	Mode      string    `json:"mode" db:"mode"`
	CreatedAt time.Time `json:"created_at" db:"created"`
}
