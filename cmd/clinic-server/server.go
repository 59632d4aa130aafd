package main

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/config"
	"github.com/clinicdesk/clinic/internal/domain/invoice"
	"github.com/clinicdesk/clinic/internal/domain/report"
	"github.com/clinicdesk/clinic/internal/domain/visit"
	"github.com/clinicdesk/clinic/internal/platform/auth"
	"github.com/clinicdesk/clinic/internal/platform/db"
	"github.com/clinicdesk/clinic/internal/platform/middleware"
)

const version = "0.1.0"

// newServer assembles the HTTP API over the given backends.
func newServer(cfg *config.Config, logger zerolog.Logger, b *backends) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/store", storeHealthHandler(b.health))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(authMiddleware(cfg))
	// Mongo tenants are picked per request from ctx; only postgres needs a
	// schema-scoped connection.
	apiV1.Use(db.TenantMiddleware(b.pool, cfg.DefaultTenant))

	invoices := invoice.NewService(b.counter)
	visits := newVisitService(cfg, b, invoices)

	visit.NewHandler(visits).RegisterRoutes(apiV1)
	invoice.NewHandler(invoices).RegisterRoutes(apiV1)
	report.NewHandler(report.NewService(visits)).RegisterRoutes(apiV1)

	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	verify := auth.JWTMiddleware(jwtCfg)

	if cfg.IsDev() {
		return auth.DevAuthMiddleware(cfg.DefaultTenant, verify)
	}
	return verify
}

// storeHealthHandler probes every configured store and answers 503 when any
// of them fails.
func storeHealthHandler(probes map[string]healthProbe) echo.HandlerFunc {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		stores := make(map[string]interface{}, len(names))
		for _, name := range names {
			detail, err := probes[name](ctx)
			entry := map[string]interface{}{"detail": detail, "healthy": err == nil}
			if err != nil {
				status = http.StatusServiceUnavailable
				entry["error"] = err.Error()
				zerolog.Ctx(c.Request().Context()).Warn().Err(err).Str("store", name).Msg("store health check failed")
			}
			stores[name] = entry
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		return c.JSON(status, map[string]interface{}{
			"status": overall,
			"stores": stores,
		})
	}
}
