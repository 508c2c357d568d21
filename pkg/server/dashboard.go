package server

import (
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"sitewatch/pkg/log"
)

func (srv *Server) serveDashboard(ctx echo.Context) error {
	indexPath := filepath.Join(srv.cfg.WebDir, "index.html")
	if err := ctx.File(indexPath); err != nil {
		log.Error().Err(err).Str("path", indexPath).Msg("Failed to serve dashboard")
		return ctx.String(http.StatusNotFound, "dashboard not found")
	}
	return nil
}
