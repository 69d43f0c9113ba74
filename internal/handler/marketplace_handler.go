package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/service"
)

type MarketplaceHandler struct {
	svc service.RegistryService
}

func NewMarketplaceHandler(svc service.RegistryService) *MarketplaceHandler {
	return &MarketplaceHandler{svc: svc}
}

type MarketplaceResponse struct {
	Address      string `json:"address"`
	Admin        string `json:"admin"`
	Name         string `json:"name"`
	Treasury     string `json:"treasury"`
	TreasuryBump uint8  `json:"treasuryBump"`
	SellerFeeBps uint16 `json:"sellerFeeBps"`
	TokenMint    string `json:"tokenMint"`
	IsActive     bool   `json:"isActive"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func toMarketplaceResponse(m *model.Marketplace) MarketplaceResponse {
	return MarketplaceResponse{
		Address:      m.Address,
		Admin:        m.Admin,
		Name:         m.Name,
		Treasury:     m.Treasury,
		TreasuryBump: m.TreasuryBump,
		SellerFeeBps: m.SellerFeeBps,
		TokenMint:    m.TokenMint,
		IsActive:     m.IsActive,
		CreatedAt:    formatTime(m.CreatedAt),
		UpdatedAt:    formatTime(m.UpdatedAt),
	}
}

type DeviceResponse struct {
	Address     string `json:"address"`
	Marketplace string `json:"marketplace"`
	DeviceID    string `json:"deviceId"`
	Owner       string `json:"owner"`
	IsActive    bool   `json:"isActive"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toDeviceResponse(d *model.Device) DeviceResponse {
	return DeviceResponse{
		Address:     d.Address,
		Marketplace: d.Marketplace,
		DeviceID:    d.DeviceID,
		Owner:       d.Owner,
		IsActive:    d.IsActive,
		CreatedAt:   formatTime(d.CreatedAt),
		UpdatedAt:   formatTime(d.UpdatedAt),
	}
}

type CreateMarketplaceRequest struct {
	Name         string `json:"name"`
	SellerFeeBps uint16 `json:"sellerFeeBps"`
	TokenMint    string `json:"tokenMint"`
}

func (h *MarketplaceHandler) Create(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req CreateMarketplaceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	m, err := h.svc.InitializeMarketplace(c.Request().Context(), uid, req.Name, req.SellerFeeBps, req.TokenMint)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toMarketplaceResponse(m))
}

type UpdateMarketplaceRequest struct {
	SellerFeeBps *uint16 `json:"sellerFeeBps"`
	IsActive     *bool   `json:"isActive"`
}

func (h *MarketplaceHandler) Update(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req UpdateMarketplaceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	m, err := h.svc.UpdateMarketplace(c.Request().Context(), uid, c.Param("key"), service.MarketplaceUpdate{
		SellerFeeBps: req.SellerFeeBps,
		IsActive:     req.IsActive,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMarketplaceResponse(m))
}

func (h *MarketplaceHandler) Get(c echo.Context) error {
	m, err := h.svc.GetMarketplace(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toMarketplaceResponse(m))
}

func (h *MarketplaceHandler) List(c echo.Context) error {
	list, err := h.svc.ListMarketplaces(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]MarketplaceResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toMarketplaceResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

type RegisterDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

func (h *MarketplaceHandler) RegisterDevice(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req RegisterDeviceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	d, err := h.svc.RegisterDevice(c.Request().Context(), uid, c.Param("key"), req.DeviceID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toDeviceResponse(d))
}

func (h *MarketplaceHandler) DeactivateDevice(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	d, err := h.svc.DeactivateDevice(c.Request().Context(), uid, c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDeviceResponse(d))
}

func (h *MarketplaceHandler) GetDevice(c echo.Context) error {
	d, err := h.svc.GetDevice(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toDeviceResponse(d))
}

func (h *MarketplaceHandler) ListDevices(c echo.Context) error {
	list, err := h.svc.ListDevices(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]DeviceResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toDeviceResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}
