package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"dbrouter/pkg/datastore"
	"dbrouter/pkg/log"
	"dbrouter/pkg/models"
	"dbrouter/pkg/router"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// adminAuth requires "Authorization: Bearer <token>" on operator routes.
func adminAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(_ error, ctx echo.Context) error {
			return errorResponse(ctx, http.StatusUnauthorized, "Unauthorized")
		},
	})
}

func metricsHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

func (srv *Server) healthz(ctx echo.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
	defer cancel()

	if err := srv.proxy.PingContext(pingCtx); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}

	activeIndex := 0
	if r := srv.proxy.Router(); r != nil {
		activeIndex = r.ActiveIndex()
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"active_index": activeIndex,
	})
}

func (srv *Server) getStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, srv.proxy.Status(ctx.Request().Context()))
}

func (srv *Server) switchBackend(ctx echo.Context) error {
	r := srv.proxy.Router()
	if r == nil {
		return errorResponse(ctx, http.StatusConflict, router.ErrSingleBackend.Error())
	}

	var req models.SwitchRequest
	if err := ctx.Bind(&req); err != nil || req.Index == nil {
		return errorResponse(ctx, http.StatusBadRequest, "Request body must be {\"index\": <n>}")
	}

	previous := r.ActiveIndex()
	if _, err := r.SwitchActive(ctx.Request().Context(), *req.Index); err != nil {
		return backendErrorResponse(ctx, err)
	}

	log.Info().Int("from_index", previous).Int("to_index", *req.Index).Msg("Operator switched active backend")
	return ctx.JSON(http.StatusOK, models.SwitchResponse{
		PreviousIndex: previous,
		ActiveIndex:   r.ActiveIndex(),
	})
}

func (srv *Server) retryBackend(ctx echo.Context) error {
	r := srv.proxy.Router()
	if r == nil {
		return errorResponse(ctx, http.StatusConflict, router.ErrSingleBackend.Error())
	}

	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "Backend index must be an integer")
	}

	if err := r.Retry(ctx.Request().Context(), index); err != nil {
		return backendErrorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, r.Status().Backends[index])
}

func backendErrorResponse(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, router.ErrIndexOutOfRange):
		return errorResponse(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, datastore.ErrConnect), errors.Is(err, router.ErrProbeFailed):
		return errorResponse(ctx, http.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Msg("Backend operation failed")
		return errorResponse(ctx, http.StatusInternalServerError, "Internal server error")
	}
}
