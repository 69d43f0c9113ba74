package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/service"
)

type ResealHandler struct {
	svc       service.ResealService
	purchases service.PurchaseService
}

func NewResealHandler(svc service.ResealService, purchases service.PurchaseService) *ResealHandler {
	return &ResealHandler{svc: svc, purchases: purchases}
}

type ResealJobResponse struct {
	Address       string  `json:"address"`
	ComputationID uint64  `json:"computationId"`
	Purchase      string  `json:"purchase"`
	Listing       string  `json:"listing"`
	Nonce         string  `json:"nonce"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
	DeliveredAt   *string `json:"deliveredAt,omitempty"`
}

func toResealJobResponse(j *model.ResealJob) *ResealJobResponse {
	if j == nil {
		return nil
	}
	return &ResealJobResponse{
		Address:       j.Address,
		ComputationID: j.ComputationID,
		Purchase:      j.Purchase,
		Listing:       j.Listing,
		Nonce:         j.Nonce,
		Status:        string(j.Status),
		CreatedAt:     formatTime(j.CreatedAt),
		DeliveredAt:   formatTimePtr(j.DeliveredAt),
	}
}

type ResealRequest struct {
	ComputationID     uint64         `json:"computationId"`
	Nonce             mpc.Nonce      `json:"nonce"`
	BuyerX25519Pubkey mpc.Bytes32    `json:"buyerX25519Pubkey"`
	Ciphertexts       [4]mpc.Bytes32 `json:"ciphertexts"`
}

func (h *ResealHandler) Request(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req ResealRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	job, err := h.svc.RequestReseal(c.Request().Context(), service.ResealRequestInput{
		Purchase:      c.Param("key"),
		Requester:     uid,
		ComputationID: req.ComputationID,
		Nonce:         req.Nonce,
		BuyerPubKey:   req.BuyerX25519Pubkey[:],
		Ciphertexts:   req.Ciphertexts,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, toResealJobResponse(job))
}

type ResealStatusResponse struct {
	Purchase PurchaseResponse   `json:"purchase"`
	State    string             `json:"state"`
	Job      *ResealJobResponse `json:"job,omitempty"`
}

func (h *ResealHandler) Status(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	// buyer or seller only
	if _, err := h.purchases.Get(ctx, c.Param("key"), uid); err != nil {
		return writeError(c, err)
	}
	st, err := h.svc.Status(ctx, c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ResealStatusResponse{
		Purchase: toPurchaseResponse(st.Purchase),
		State:    string(st.State),
		Job:      toResealJobResponse(st.Job),
	})
}

type FinalizeRequest struct {
	Marketplace string `json:"marketplace"`
	Listing     string `json:"listing"`
	CID         string `json:"cid"`
}

func (h *ResealHandler) Finalize(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req FinalizeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	p, err := h.svc.FinalizePurchase(c.Request().Context(), service.FinalizeInput{
		Authority:   uid,
		Marketplace: req.Marketplace,
		Listing:     req.Listing,
		Purchase:    c.Param("key"),
		CID:         req.CID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPurchaseResponse(p))
}
