package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/miramaps/updown-engine/internal/engine"
)

// EngineHandler exposes the External Interface Surface: a pull-based status
// snapshot and a small set of runtime commands.
type EngineHandler struct {
	Engine *engine.Engine
}

func (h *EngineHandler) Register(r *gin.Engine) {
	r.GET("/status", h.status)
	r.POST("/command", h.command)
}

func (h *EngineHandler) status(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	Ok(c, h.Engine.Status(), nil)
}

type commandRequest struct {
	Command     string  `json:"command" binding:"required"`
	Mode        string  `json:"mode,omitempty"`
	Field       string  `json:"field,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Enabled     bool    `json:"enabled,omitempty"`
	Cash        float64 `json:"starting_cash,omitempty"`
	Slug        string  `json:"slug,omitempty"`
	UpTokenID   string  `json:"up_token_id,omitempty"`
	DownTokenID string  `json:"down_token_id,omitempty"`
	Side        string  `json:"side,omitempty"`
	TokenID     string  `json:"token_id,omitempty"`
	Shares      float64 `json:"shares,omitempty"`
	Price       float64 `json:"price,omitempty"`
	IsLive      bool    `json:"is_live,omitempty"`
}

func (h *EngineHandler) command(c *gin.Context) {
	if h.Engine == nil {
		Error(c, http.StatusInternalServerError, "engine unavailable", nil)
		return
	}
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Command)) {
	case "start":
		h.Engine.Start()
	case "stop":
		h.Engine.Stop()
	case "set_mode":
		if err := h.Engine.SetMode(c.Request.Context(), engine.Mode(strings.ToLower(req.Mode))); err != nil {
			Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
	case "reset":
		if err := h.Engine.Reset(req.Cash); err != nil {
			Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
	case "set_config_field":
		if err := h.Engine.SetConfigField(req.Field, req.Value); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	case "set_dca_enabled":
		h.Engine.SetDCAEnabled(req.Enabled)
	case "set_market":
		h.Engine.SetMarket(req.Slug, req.UpTokenID, req.DownTokenID)
	case "place_external_trade":
		trade, err := h.Engine.PlaceExternalTrade(engine.ExternalTradeRequest{
			Side:    engine.Side(strings.ToUpper(strings.TrimSpace(req.Side))),
			TokenID: req.TokenID,
			Shares:  req.Shares,
			Price:   req.Price,
			IsLive:  req.IsLive,
		})
		if err != nil {
			Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
		Ok(c, trade, nil)
		return
	default:
		Error(c, http.StatusBadRequest, "unknown command", nil)
		return
	}
	Ok(c, nil, nil)
}
