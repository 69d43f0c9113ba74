package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/shinyyama/sensor-market/internal/service"
)

type ListingHandler struct {
	svc service.ListingService
}

func NewListingHandler(svc service.ListingService) *ListingHandler {
	return &ListingHandler{svc: svc}
}

type ListingResponse struct {
	Address             string  `json:"address"`
	Seller              string  `json:"seller"`
	Marketplace         string  `json:"marketplace"`
	Device              string  `json:"device"`
	DeviceID            string  `json:"deviceId"`
	DataCID             string  `json:"dataCid"`
	DekCapsuleForMxeCID string  `json:"dekCapsuleForMxeCid"`
	PricePerUnit        uint64  `json:"pricePerUnit"`
	TotalDataUnits      uint64  `json:"totalDataUnits"`
	RemainingUnits      uint64  `json:"remainingUnits"`
	TokenMint           string  `json:"tokenMint"`
	Status              string  `json:"status"`
	PurchaseCount       uint64  `json:"purchaseCount"`
	Buyer               *string `json:"buyer,omitempty"`
	CreatedAt           string  `json:"createdAt"`
	UpdatedAt           string  `json:"updatedAt"`
	ExpiresAt           *string `json:"expiresAt,omitempty"`
	SoldAt              *string `json:"soldAt,omitempty"`
}

type ListingListResponse struct {
	Listings []ListingResponse `json:"listings"`
	Total    int64             `json:"total"`
}

func toListingResponse(l *model.Listing) ListingResponse {
	return ListingResponse{
		Address:             l.Address,
		Seller:              l.Seller,
		Marketplace:         l.Marketplace,
		Device:              l.Device,
		DeviceID:            l.DeviceID,
		DataCID:             l.DataCID,
		DekCapsuleForMxeCID: l.DekCapsuleForMxeCID,
		PricePerUnit:        l.PricePerUnit,
		TotalDataUnits:      l.TotalDataUnits,
		RemainingUnits:      l.RemainingUnits,
		TokenMint:           l.TokenMint,
		Status:              l.Status.String(),
		PurchaseCount:       l.PurchaseCount,
		Buyer:               l.Buyer,
		CreatedAt:           formatTime(l.CreatedAt),
		UpdatedAt:           formatTime(l.UpdatedAt),
		ExpiresAt:           formatTimePtr(l.ExpiresAt),
		SoldAt:              formatTimePtr(l.SoldAt),
	}
}

func toListingList(list []model.Listing, total int64) ListingListResponse {
	resp := ListingListResponse{
		Listings: make([]ListingResponse, 0, len(list)),
		Total:    total,
	}
	for i := range list {
		resp.Listings = append(resp.Listings, toListingResponse(&list[i]))
	}
	return resp
}

type CreateListingRequest struct {
	Device              string     `json:"device"`
	DataCID             string     `json:"dataCid"`
	DekCapsuleForMxeCID string     `json:"dekCapsuleForMxeCid"`
	PricePerUnit        uint64     `json:"pricePerUnit"`
	TotalDataUnits      uint64     `json:"totalDataUnits"`
	ExpiresAt           *time.Time `json:"expiresAt"`
}

func (h *ListingHandler) Create(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req CreateListingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	l, err := h.svc.Create(c.Request().Context(), service.CreateListingInput{
		Seller:              uid,
		Marketplace:         c.Param("key"),
		Device:              req.Device,
		DataCID:             req.DataCID,
		DekCapsuleForMxeCID: req.DekCapsuleForMxeCID,
		PricePerUnit:        req.PricePerUnit,
		TotalDataUnits:      req.TotalDataUnits,
		ExpiresAt:           req.ExpiresAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toListingResponse(l))
}

func (h *ListingHandler) Cancel(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	l, err := h.svc.Cancel(c.Request().Context(), uid, c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l))
}

func (h *ListingHandler) Get(c echo.Context) error {
	l, err := h.svc.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l))
}

func (h *ListingHandler) List(c echo.Context) error {
	f := repository.ListingFilter{
		Marketplace: c.QueryParam("marketplace"),
		Seller:      c.QueryParam("seller"),
		Limit:       queryInt(c, "limit"),
		Offset:      queryInt(c, "offset"),
	}
	if s := c.QueryParam("status"); s != "" {
		st, ok := model.ParseListingStatus(s)
		if !ok {
			return badRequest(c, "invalid status")
		}
		f.Status = &st
	}
	list, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toListingList(list, total))
}

func (h *ListingHandler) ListMine(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, total, err := h.svc.ListBySeller(c.Request().Context(), uid, queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toListingList(list, total))
}
