package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/service"
)

// CallbackHandler receives signed computation results from the cluster.
// Callers are not user-authenticated; trust comes from the signature.
type CallbackHandler struct {
	reseal  service.ResealService
	quality service.QualityService
}

func NewCallbackHandler(reseal service.ResealService, quality service.QualityService) *CallbackHandler {
	return &CallbackHandler{reseal: reseal, quality: quality}
}

type CallbackResponse struct {
	Circuit       string             `json:"circuit"`
	ComputationID uint64             `json:"computationId"`
	Job           *ResealJobResponse `json:"job,omitempty"`
	Output        *mpc.ResealOutput  `json:"output,omitempty"`
	Quality       *QualityResponse   `json:"quality,omitempty"`
}

func (h *CallbackHandler) Handle(c echo.Context) error {
	var cb mpc.Callback
	if err := c.Bind(&cb); err != nil {
		return badRequest(c, "invalid json")
	}
	ctx := c.Request().Context()
	resp := CallbackResponse{Circuit: cb.Circuit, ComputationID: cb.ComputationID}

	switch cb.Circuit {
	case mpc.CircuitResealDEK:
		res, err := h.reseal.OnResealResult(ctx, &cb)
		if err != nil {
			return writeError(c, err)
		}
		resp.Job = toResealJobResponse(res.Job)
		resp.Output = res.Output
	case mpc.CircuitAccuracyScore:
		st, err := h.quality.OnAccuracyResult(ctx, &cb)
		if err != nil {
			return writeError(c, err)
		}
		q := toQualityResponse(st)
		resp.Quality = &q
	default:
		return writeError(c, service.ErrCircuitMismatch)
	}
	return c.JSON(http.StatusOK, resp)
}
