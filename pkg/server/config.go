package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"sitewatch/pkg/config"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
)

// getConfig handles GET /api/config.
func (srv *Server) getConfig(ctx echo.Context) error {
	doc, err := srv.sites.Read(ctx.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read sites document")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return ctx.JSON(http.StatusOK, doc)
}

// updateConfig handles POST /api/config. Invalid documents are rejected untouched.
func (srv *Server) updateConfig(ctx echo.Context) error {
	var doc models.SitesDocument
	if err := ctx.Bind(&doc); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
	}
	if doc.Sites == nil {
		doc.Sites = []models.SiteConfig{}
	}

	if err := srv.sites.Write(ctx.Request().Context(), &doc); err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			return ctx.JSON(http.StatusBadRequest, map[string]interface{}{
				"error":    "invalid sites document",
				"problems": invalid.Problems,
			})
		}
		log.Error().Err(err).Msg("Failed to save sites document")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	log.Info().Int("sites", len(doc.Sites)).Msg("Sites document updated")
	return ctx.JSON(http.StatusOK, map[string]bool{"success": true})
}
