package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/service"
)

type AccountHandler struct {
	svc service.AccountService
}

func NewAccountHandler(svc service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type AccountResponse struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	Amount  uint64 `json:"amount"`
}

func toAccountResponse(a *model.TokenAccount) AccountResponse {
	return AccountResponse{Address: a.Address, Owner: a.Owner, Mint: a.Mint, Amount: a.Amount}
}

func (h *AccountHandler) Open(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var body struct {
		Mint string `json:"mint"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json")
	}
	a, err := h.svc.Open(c.Request().Context(), uid, body.Mint)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAccountResponse(a))
}

func (h *AccountHandler) ListMine(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.ListByOwner(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]AccountResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toAccountResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}
