package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"sitewatch/pkg/objectstore"
	"sitewatch/pkg/server/gateway"
)

// downloadObject handles GET /objects/:hash, the target of screenshot references.
func (srv *Server) downloadObject(ctx echo.Context) error {
	hash := strings.ToLower(ctx.Param("hash"))
	if !objectstore.ValidHash(hash) {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid hash format",
		})
	}

	reader, err := srv.objects.Open(ctx.Request().Context(), hash)
	if err != nil {
		return gateway.BlobError(ctx, hash, err)
	}
	defer func() { _ = reader.Close() }()

	// Blobs never change under a hash.
	ctx.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return ctx.Stream(http.StatusOK, "image/png", reader)
}
