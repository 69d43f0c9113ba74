package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/service"
)

type QualityHandler struct {
	svc service.QualityService
}

func NewQualityHandler(svc service.QualityService) *QualityHandler {
	return &QualityHandler{svc: svc}
}

type QualityResponse struct {
	Device         string `json:"device"`
	CiphertextHash string `json:"ciphertextHash"`
	NonceLE        string `json:"nonceLe"`
	WindowCount    uint64 `json:"windowCount"`
	UpdatedAt      string `json:"updatedAt"`
}

func toQualityResponse(s *model.DqState) QualityResponse {
	return QualityResponse{
		Device:         s.Device,
		CiphertextHash: s.LastAccCiphertextHash,
		NonceLE:        s.LastAccNonceLE,
		WindowCount:    s.WindowCount,
		UpdatedAt:      formatTime(s.UpdatedAt),
	}
}

type QualityJobResponse struct {
	Address       string `json:"address"`
	ComputationID uint64 `json:"computationId"`
	Device        string `json:"device"`
	Nonce         string `json:"nonce"`
	CreatedAt     string `json:"createdAt"`
}

// AccuracyRequest carries ciphertexts of Q16.16 values encrypted under the
// shared key derived from PublicKey.
type AccuracyRequest struct {
	ComputationID uint64      `json:"computationId"`
	PublicKey     mpc.Bytes32 `json:"publicKey"`
	Nonce         mpc.Nonce   `json:"nonce"`
	Reading       mpc.Bytes32 `json:"reading"`
	Mean          mpc.Bytes32 `json:"mean"`
	StdDev        mpc.Bytes32 `json:"stdDev"`
}

func (h *QualityHandler) RequestAccuracy(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req AccuracyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	job, err := h.svc.RequestAccuracyScore(c.Request().Context(), service.AccuracyInput{
		Owner:         uid,
		Device:        c.Param("key"),
		ComputationID: req.ComputationID,
		PublicKey:     req.PublicKey[:],
		Nonce:         req.Nonce,
		Reading:       req.Reading,
		Mean:          req.Mean,
		StdDev:        req.StdDev,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, QualityJobResponse{
		Address:       job.Address,
		ComputationID: job.ComputationID,
		Device:        job.Device,
		Nonce:         job.Nonce,
		CreatedAt:     formatTime(job.CreatedAt),
	})
}

func (h *QualityHandler) Get(c echo.Context) error {
	st, err := h.svc.GetQuality(c.Request().Context(), c.Param("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toQualityResponse(st))
}
