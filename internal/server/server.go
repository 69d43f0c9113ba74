package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shinyyama/sensor-market/internal/handler"
	appmw "github.com/shinyyama/sensor-market/internal/middleware"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/shinyyama/sensor-market/internal/service"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP server is built from.
type Deps struct {
	DB            *gorm.DB
	Auth          appmw.Authenticator
	Submitter     mpc.Submitter
	Verifier      service.CallbackVerifier
	ResealTimeout time.Duration
	Clock         service.Clock
}

type Server struct {
	e     *echo.Echo
	sha   string
	build string
}

func New(deps Deps, sha, buildTime string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(appmw.RequestContext)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", appmw.HeaderUID},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			host := u.Hostname()
			if strings.HasSuffix(host, "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	store := repository.NewStore(deps.DB)
	clock := deps.Clock

	registrySvc := service.NewRegistryService(store, clock)
	accountSvc := service.NewAccountService(store)
	listingSvc := service.NewListingService(store, clock)
	purchaseSvc := service.NewPurchaseService(store, clock)
	resealSvc := service.NewResealService(store, deps.Submitter, deps.Verifier, clock, deps.ResealTimeout)
	qualitySvc := service.NewQualityService(store, deps.Submitter, deps.Verifier, clock)
	eventSvc := service.NewEventService(store)

	marketHandler := handler.NewMarketplaceHandler(registrySvc)
	accountHandler := handler.NewAccountHandler(accountSvc)
	listingHandler := handler.NewListingHandler(listingSvc)
	purchaseHandler := handler.NewPurchaseHandler(purchaseSvc)
	resealHandler := handler.NewResealHandler(resealSvc, purchaseSvc)
	qualityHandler := handler.NewQualityHandler(qualitySvc)
	callbackHandler := handler.NewCallbackHandler(resealSvc, qualitySvc)
	eventHandler := handler.NewEventHandler(eventSvc)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	auth := deps.Auth.RequireAuth

	api.GET("/marketplaces", marketHandler.List)
	api.GET("/marketplaces/:key", marketHandler.Get)
	api.POST("/marketplaces", marketHandler.Create, auth)
	api.PATCH("/marketplaces/:key", marketHandler.Update, auth)

	api.GET("/marketplaces/:key/devices", marketHandler.ListDevices)
	api.POST("/marketplaces/:key/devices", marketHandler.RegisterDevice, auth)
	api.GET("/devices/:key", marketHandler.GetDevice)
	api.POST("/devices/:key/deactivate", marketHandler.DeactivateDevice, auth)
	api.GET("/devices/:key/quality", qualityHandler.Get)
	api.POST("/devices/:key/accuracy", qualityHandler.RequestAccuracy, auth)

	api.POST("/marketplaces/:key/listings", listingHandler.Create, auth)
	api.GET("/listings", listingHandler.List)
	api.GET("/listings/:key", listingHandler.Get)
	api.POST("/listings/:key/cancel", listingHandler.Cancel, auth)
	api.POST("/listings/:key/purchase", purchaseHandler.Purchase, auth)

	api.GET("/purchases/:key", purchaseHandler.Get, auth)
	api.POST("/purchases/:key/reseal", resealHandler.Request, auth)
	api.GET("/purchases/:key/reseal", resealHandler.Status, auth)
	api.POST("/purchases/:key/finalize", resealHandler.Finalize, auth)

	api.POST("/accounts", accountHandler.Open, auth)
	api.GET("/me/accounts", accountHandler.ListMine, auth)
	api.GET("/me/listings", listingHandler.ListMine, auth)
	api.GET("/me/purchases", purchaseHandler.ListMine, auth)
	api.GET("/me/sales", purchaseHandler.ListSales, auth)

	api.GET("/events", eventHandler.List)
	api.POST("/mpc/callback", callbackHandler.Handle)

	return &Server{e: e, sha: sha, build: buildTime}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
