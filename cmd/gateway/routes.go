package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/tracecore/pkg/gateway"
	"github.com/arc-self/tracecore/pkg/propagate"
)

type createLinkRequest struct {
	URL string `json:"url"`
}

type createLinkResponse struct {
	Code string `json:"code"`
}

// registerRoutes binds the link-shortener's demo HTTP surface. Every
// handler reads the StandardContext gateway.Middleware already attached —
// none of them parse headers or resolve identity themselves.
func registerRoutes(e *echo.Echo, svc *LinkService, logger *zap.Logger) {
	e.POST("/links", func(c echo.Context) error {
		var req createLinkRequest
		if err := c.Bind(&req); err != nil || req.URL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "url is required")
		}

		ctx := c.Request().Context()
		sc, _ := gateway.FromContext(ctx)
		ctx = propagate.Bind(ctx, propagate.Scope{Standard: sc})
		log := propagate.Logger(ctx, logger)

		code, err := svc.CreateLink(ctx, req.URL)
		if err != nil {
			log.Error("create link failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to create link")
		}

		log.Info("link created", zap.String("code", code))
		return c.JSON(http.StatusCreated, createLinkResponse{Code: code})
	})

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
}
