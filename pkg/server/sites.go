package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"sitewatch/pkg/config"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
	"sitewatch/pkg/monitor"
	"sitewatch/pkg/status"
)

// listSites handles GET /api/sites.
func (srv *Server) listSites(ctx echo.Context) error {
	statuses, err := srv.monitor.Statuses(ctx.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list site statuses")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	if statuses == nil {
		statuses = []models.SiteStatus{}
	}
	return ctx.JSON(http.StatusOK, statuses)
}

// checkAll handles POST /api/check. The batch runs in the background.
func (srv *Server) checkAll(ctx echo.Context) error {
	if err := srv.monitor.TriggerCheckAll(); err != nil {
		if errors.Is(err, monitor.ErrCheckInProgress) {
			return ctx.JSON(http.StatusConflict, map[string]string{
				"error":  err.Error(),
				"status": "running",
			})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{
		"message": "Check started",
		"status":  "running",
	})
}

// checkSite handles POST /api/check/:siteId and answers with the new record.
func (srv *Server) checkSite(ctx echo.Context) error {
	siteID := ctx.Param("siteId")

	record, err := srv.monitor.CheckSite(ctx.Request().Context(), siteID)
	if err != nil {
		var notFound *config.SiteNotFoundError
		if errors.As(err, &notFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": err.Error(),
			})
		}
		log.Error().Err(err).Str("site_id", siteID).Msg("Site check failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	return ctx.JSON(http.StatusOK, record)
}

// approve handles POST /api/approve/:siteId.
func (srv *Server) approve(ctx echo.Context) error {
	siteID := ctx.Param("siteId")

	record, err := srv.monitor.ApproveBaseline(ctx.Request().Context(), siteID)
	if err != nil {
		var notFound *status.StatusNotFoundError
		if errors.As(err, &notFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": err.Error(),
			})
		}
		log.Error().Err(err).Str("site_id", siteID).Msg("Baseline approval failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"site":    record,
	})
}
