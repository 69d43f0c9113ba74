package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/service"
)

type PurchaseHandler struct {
	svc service.PurchaseService
}

func NewPurchaseHandler(svc service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{svc: svc}
}

type PurchaseResponse struct {
	Address               string `json:"address"`
	Listing               string `json:"listing"`
	PurchaseIndex         uint64 `json:"purchaseIndex"`
	Buyer                 string `json:"buyer"`
	Seller                string `json:"seller"`
	UnitsPurchased        uint64 `json:"unitsPurchased"`
	PricePaid             uint64 `json:"pricePaid"`
	Fee                   uint64 `json:"fee"`
	Timestamp             string `json:"timestamp"`
	BuyerX25519Pubkey     string `json:"buyerX25519Pubkey"`
	DekCapsuleForMxeCID   string `json:"dekCapsuleForMxeCid"`
	DekCapsuleForBuyerCID string `json:"dekCapsuleForBuyerCid"`
}

func toPurchaseResponse(p *model.PurchaseRecord) PurchaseResponse {
	return PurchaseResponse{
		Address:               p.Address,
		Listing:               p.Listing,
		PurchaseIndex:         p.PurchaseIndex,
		Buyer:                 p.Buyer,
		Seller:                p.Seller,
		UnitsPurchased:        p.UnitsPurchased,
		PricePaid:             p.PricePaid,
		Fee:                   p.Fee,
		Timestamp:             formatTime(p.Timestamp),
		BuyerX25519Pubkey:     p.BuyerX25519Pubkey,
		DekCapsuleForMxeCID:   p.DekCapsuleForMxeCID,
		DekCapsuleForBuyerCID: p.DekCapsuleForBuyerCID,
	}
}

func toPurchaseList(list []model.PurchaseRecord) []PurchaseResponse {
	resp := make([]PurchaseResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toPurchaseResponse(&list[i]))
	}
	return resp
}

type PurchaseRequest struct {
	Marketplace       string      `json:"marketplace"`
	Device            string      `json:"device"`
	TokenMint         string      `json:"tokenMint"`
	Treasury          string      `json:"treasury"`
	BuyerAccount      string      `json:"buyerAccount"`
	SellerAccount     string      `json:"sellerAccount"`
	TreasuryAccount   string      `json:"treasuryAccount"`
	Units             uint64      `json:"units"`
	BuyerX25519Pubkey mpc.Bytes32 `json:"buyerX25519Pubkey"`
	PurchaseIndex     uint64      `json:"purchaseIndex"`
}

type PurchaseResultResponse struct {
	Purchase PurchaseResponse `json:"purchase"`
	Listing  ListingResponse  `json:"listing"`
}

func (h *PurchaseHandler) Purchase(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	res, err := h.svc.Purchase(c.Request().Context(), service.PurchaseInput{
		Buyer:           uid,
		Marketplace:     req.Marketplace,
		Device:          req.Device,
		Listing:         c.Param("key"),
		TokenMint:       req.TokenMint,
		Treasury:        req.Treasury,
		BuyerAccount:    req.BuyerAccount,
		SellerAccount:   req.SellerAccount,
		TreasuryAccount: req.TreasuryAccount,
		Units:           req.Units,
		BuyerX25519:     req.BuyerX25519Pubkey[:],
		PurchaseIndex:   req.PurchaseIndex,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, PurchaseResultResponse{
		Purchase: toPurchaseResponse(res.Record),
		Listing:  toListingResponse(res.Listing),
	})
}

func (h *PurchaseHandler) Get(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	p, err := h.svc.Get(c.Request().Context(), c.Param("key"), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPurchaseResponse(p))
}

func (h *PurchaseHandler) ListMine(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.ListByBuyer(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPurchaseList(list))
}

func (h *PurchaseHandler) ListSales(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.ListBySeller(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPurchaseList(list))
}
