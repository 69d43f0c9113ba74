package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/shinyyama/sensor-market/internal/service"
)

type EventHandler struct {
	svc service.EventService
}

func NewEventHandler(svc service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

type EventResponse struct {
	ID        uint64          `json:"id"`
	Kind      string          `json:"kind"`
	Listing   string          `json:"listing,omitempty"`
	Purchase  string          `json:"purchase,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"createdAt"`
}

// List pages through the event log. Clients pass the last id they saw as
// ?after= to resume.
func (h *EventHandler) List(c echo.Context) error {
	f := repository.EventFilter{
		Listing: c.QueryParam("listing"),
		Limit:   queryInt(c, "limit"),
	}
	if s := c.QueryParam("after"); s != "" {
		after, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badRequest(c, "invalid after")
		}
		f.After = after
	}
	if s := c.QueryParam("kind"); s != "" {
		for _, k := range strings.Split(s, ",") {
			f.Kinds = append(f.Kinds, model.EventKind(strings.TrimSpace(k)))
		}
	}

	events, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, EventResponse{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Listing:   e.Listing,
			Purchase:  e.Purchase,
			Actor:     e.Actor,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: formatTime(e.CreatedAt),
		})
	}
	return c.JSON(http.StatusOK, resp)
}
