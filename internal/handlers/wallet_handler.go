package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/internal/services/session"
	"ticket-market/models"
)

type WalletHandler struct {
	manager *session.Manager
	gate    *session.Gate
}

func NewWalletHandler(manager *session.Manager, gate *session.Gate) *WalletHandler {
	return &WalletHandler{
		manager: manager,
		gate:    gate,
	}
}

type SessionResponse struct {
	Session models.Session     `json:"session"`
	Network session.GateStatus `json:"network"`
}

func (h *WalletHandler) sessionResponse() SessionResponse {
	s := h.manager.Session()
	return SessionResponse{Session: s, Network: h.gate.Status(s)}
}

// GetSession - Current wallet binding and network gate status
func (h *WalletHandler) GetSession(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, h.sessionResponse())
}

// Connect - Ask the wallet for account access
func (h *WalletHandler) Connect(e *core.RequestEvent) error {
	if err := h.manager.Connect(e.Request.Context()); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, h.sessionResponse())
}

func (h *WalletHandler) Disconnect(e *core.RequestEvent) error {
	h.manager.Disconnect(e.Request.Context())
	return e.JSON(http.StatusOK, h.sessionResponse())
}

type SwitchNetworkRequest struct {
	// ChainID accepts a network key ("SEPOLIA"), hex or decimal chain id.
	ChainID string `json:"chain_id"`
}

func (h *WalletHandler) SwitchNetwork(e *core.RequestEvent) error {
	var req SwitchNetworkRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	target := req.ChainID
	if n, ok := models.LookupNetwork(req.ChainID); ok {
		target = n.ChainID
	} else if id, err := models.ParseChainID(req.ChainID); err == nil {
		target = models.FormatChainID(id)
	} else {
		return apis.NewBadRequestError("Invalid chain id", err)
	}

	switched := h.manager.SwitchNetwork(e.Request.Context(), target)
	return e.JSON(http.StatusOK, map[string]any{
		"switched": switched,
		"session":  h.sessionResponse(),
	})
}

// GetNetworks - Networks the wallet can be asked to switch to
func (h *WalletHandler) GetNetworks(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, map[string]any{
		"networks": models.SupportedNetworks,
		"required": h.gate.Required(),
	})
}
