package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/internal/services/ledger"
	"ticket-market/internal/services/market"
	"ticket-market/internal/services/notify"
	"ticket-market/models"
)

// ActivityReader lists journaled marketplace actions.
type ActivityReader interface {
	Recent(ctx context.Context, account string, limit int) ([]models.Activity, error)
}

type MarketHandler struct {
	market   *market.Market
	client   ledger.Client
	feed     *notify.Feed
	activity ActivityReader
}

func NewMarketHandler(m *market.Market, client ledger.Client, feed *notify.Feed, activity ActivityReader) *MarketHandler {
	return &MarketHandler{
		market:   m,
		client:   client,
		feed:     feed,
		activity: activity,
	}
}

// GetMarket - My tickets, tickets for sale and the processing flag
func (h *MarketHandler) GetMarket(e *core.RequestEvent) error {
	return e.JSON(http.StatusOK, h.market.View())
}

func (h *MarketHandler) Refresh(e *core.RequestEvent) error {
	if err := h.market.Refresh(e.Request.Context()); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, h.market.View())
}

// GetTickets - Every ticket on the ledger
func (h *MarketHandler) GetTickets(e *core.RequestEvent) error {
	tickets, err := h.client.GetAllTickets(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"tickets": tickets,
		"total":   len(tickets),
		"mode":    h.client.Mode(),
	})
}

type MintRequest struct {
	Name  string `json:"name"`
	Event string `json:"event"`
	Price string `json:"price"`
}

// Mint - Issue a new ticket to the connected account
func (h *MarketHandler) Mint(e *core.RequestEvent) error {
	var req MintRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Event = strings.TrimSpace(req.Event)
	if req.Name == "" || req.Event == "" || strings.TrimSpace(req.Price) == "" {
		return apis.NewBadRequestError("name, event and price are required", nil)
	}

	id, err := h.market.Mint(e.Request.Context(), req.Name, req.Event, req.Price)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, map[string]any{
		"id":     id,
		"market": h.market.View(),
	})
}

type PriceRequest struct {
	Price string `json:"price"`
}

func (h *MarketHandler) bindPrice(e *core.RequestEvent) (string, error) {
	var req PriceRequest
	if err := e.BindBody(&req); err != nil {
		return "", apis.NewBadRequestError("Invalid request body", err)
	}
	if strings.TrimSpace(req.Price) == "" {
		return "", apis.NewBadRequestError("price is required", nil)
	}
	return req.Price, nil
}

// ListForSale - Put an owned ticket up for resale
func (h *MarketHandler) ListForSale(e *core.RequestEvent) error {
	price, err := h.bindPrice(e)
	if err != nil {
		return err
	}
	if err := h.market.List(e.Request.Context(), e.Request.PathValue("id"), price); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, h.market.View())
}

func (h *MarketHandler) CancelSale(e *core.RequestEvent) error {
	if err := h.market.CancelSale(e.Request.Context(), e.Request.PathValue("id")); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, h.market.View())
}

func (h *MarketHandler) Buy(e *core.RequestEvent) error {
	price, err := h.bindPrice(e)
	if err != nil {
		return err
	}
	if err := h.market.Buy(e.Request.Context(), e.Request.PathValue("id"), price); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, h.market.View())
}

// GetNotifications - Recent user-facing notifications, newest first
func (h *MarketHandler) GetNotifications(e *core.RequestEvent) error {
	items := []models.Notification{}
	if h.feed != nil {
		items = h.feed.List()
	}
	return e.JSON(http.StatusOK, map[string]any{"notifications": items})
}

// GetActivity - Journaled marketplace actions, optionally for one account
func (h *MarketHandler) GetActivity(e *core.RequestEvent) error {
	if h.activity == nil {
		return apis.NewNotFoundError("Activity journal is disabled", nil)
	}

	query := e.Request.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))

	entries, err := h.activity.Recent(e.Request.Context(), query.Get("account"), limit)
	if err != nil {
		return apis.NewBadRequestError("Failed to load activity", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"activity": entries})
}
