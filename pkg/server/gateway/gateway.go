// Package gateway exposes the local object store over HTTP with the bucket API that
// objectstore.Remote speaks, so one sitewatch instance can store screenshots for
// others.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"sitewatch/pkg/bucket"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
	"sitewatch/pkg/objectstore"
	"sitewatch/pkg/store"
)

const (
	headerObjectHash = "X-Object-Hash"
	headerObjectSize = "X-Object-Size"
	headerObjectKey  = "X-Object-Key"

	defaultContentType = "application/octet-stream"
)

// Handlers serves bucket and blob routes from a local object store.
type Handlers struct {
	objects *objectstore.Local
	index   *bucket.Store
}

// New returns handlers backed by objects.
func New(objects *objectstore.Local) *Handlers {
	return &Handlers{objects: objects, index: objects.Index()}
}

// Register mounts the gateway routes on e.
func (h *Handlers) Register(e *echo.Echo) {
	e.POST("/bucket/:name", h.CreateBucketHandler)
	e.GET("/bucket/:name", h.GetBucketHandler)
	e.POST("/bucket/:name/upload", h.UploadHandler)
	e.GET("/bucket/:name/objects", h.ListObjectsHandler)
	e.GET("/bucket/:name/object/*", h.GetObjectHandler)
	e.HEAD("/bucket/:name/object/*", h.HeadObjectHandler)
	e.DELETE("/bucket/:name/object/*", h.DeleteObjectHandler)
	e.GET("/file/:hash/download", h.DownloadHandler)
}

// CreateBucketHandler creates a bucket.
// POST /bucket/:name.
func (h *Handlers) CreateBucketHandler(ctx echo.Context) error {
	name := ctx.Param("name")

	record, err := h.index.CreateBucket(ctx.Request().Context(), name)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketExists) {
			return ctx.JSON(http.StatusConflict, map[string]string{
				"error": "Bucket already exists",
			})
		}
		if errors.Is(err, bucket.ErrInvalidBucketName) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid bucket name. Must be 3-63 characters, lowercase alphanumeric with hyphens.",
			})
		}
		log.Error().Err(err).Str("bucket", name).Msg("Failed to create bucket")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to create bucket",
		})
	}

	log.Info().Str("bucket", name).Msg("Bucket created")
	return ctx.JSON(http.StatusCreated, record)
}

// GetBucketHandler returns bucket statistics.
// GET /bucket/:name.
func (h *Handlers) GetBucketHandler(ctx echo.Context) error {
	record, err := h.index.GetBucket(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return bucketError(ctx, err, "Failed to get bucket")
	}
	return ctx.JSON(http.StatusOK, record)
}

// UploadHandler stores a multipart "file" under the form "key" (or the file name).
// POST /bucket/:name/upload.
func (h *Handlers) UploadHandler(ctx echo.Context) error {
	name := ctx.Param("name")
	reqCtx := ctx.Request().Context()

	if _, err := h.index.GetBucket(reqCtx, name); err != nil {
		return bucketError(ctx, err, "Failed to get bucket")
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "No file provided",
		})
	}

	key := ctx.FormValue("key")
	if key == "" {
		key = file.Filename
	}
	if key == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Object key is required",
		})
	}

	contentType := file.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	src, err := file.Open()
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Failed to read upload",
		})
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close upload")
		}
	}()

	obj, err := h.objects.PutObject(reqCtx, name, key, src, contentType)
	if err != nil {
		log.Error().Err(err).Str("bucket", name).Str("key", key).Msg("Upload failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Upload failed: " + err.Error(),
		})
	}

	return ctx.JSON(http.StatusOK, models.BucketUploadResponse{
		Hash:   obj.Hash,
		Key:    obj.Key,
		Bucket: name,
		Size:   obj.Size,
	})
}

// GetObjectHandler streams the object stored under key.
// GET /bucket/:name/object/*.
func (h *Handlers) GetObjectHandler(ctx echo.Context) error {
	obj, err := h.lookup(ctx)
	if err != nil {
		return objectError(ctx, err)
	}
	return h.stream(ctx, obj.Hash, obj.ContentType)
}

// HeadObjectHandler returns object metadata without a body.
// HEAD /bucket/:name/object/*.
func (h *Handlers) HeadObjectHandler(ctx echo.Context) error {
	obj, err := h.lookup(ctx)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) || errors.Is(err, bucket.ErrObjectNotFound) || errors.Is(err, bucket.ErrInvalidKey) {
			return ctx.NoContent(http.StatusNotFound)
		}
		return ctx.NoContent(http.StatusInternalServerError)
	}

	header := ctx.Response().Header()
	header.Set(headerObjectHash, obj.Hash)
	header.Set(headerObjectSize, strconv.FormatInt(obj.Size, 10))
	header.Set(headerObjectKey, obj.Key)
	header.Set(echo.HeaderLastModified, obj.UpdatedAt.UTC().Format(http.TimeFormat))
	if obj.ContentType != "" {
		header.Set(echo.HeaderContentType, obj.ContentType)
	}

	return ctx.NoContent(http.StatusOK)
}

// DeleteObjectHandler removes the key, and its content unless another key shares it.
// DELETE /bucket/:name/object/*.
func (h *Handlers) DeleteObjectHandler(ctx echo.Context) error {
	name := ctx.Param("name")
	key, err := objectKey(ctx)
	if err != nil {
		return objectError(ctx, err)
	}

	if err := h.objects.DeleteObject(ctx.Request().Context(), name, key); err != nil {
		return objectError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "Object deleted successfully",
		"bucket":  name,
		"key":     key,
	})
}

// ListObjectsHandler pages through a bucket ordered by key.
// GET /bucket/:name/objects?prefix=&cursor=&max-keys=.
func (h *Handlers) ListObjectsHandler(ctx echo.Context) error {
	opts := &bucket.ListOptions{
		Prefix: ctx.QueryParam("prefix"),
		Cursor: ctx.QueryParam("cursor"),
	}
	if maxKeysStr := ctx.QueryParam("max-keys"); maxKeysStr != "" {
		if maxKeys, err := strconv.Atoi(maxKeysStr); err == nil && maxKeys > 0 {
			opts.MaxKeys = maxKeys
		}
	}

	result, err := h.index.ListObjects(ctx.Request().Context(), ctx.Param("name"), opts)
	if err != nil {
		return bucketError(ctx, err, "Failed to list objects")
	}

	if result.Objects == nil {
		result.Objects = []models.BucketObject{}
	}
	return ctx.JSON(http.StatusOK, result)
}

// DownloadHandler streams a blob by content hash.
// GET /file/:hash/download.
func (h *Handlers) DownloadHandler(ctx echo.Context) error {
	return h.stream(ctx, ctx.Param("hash"), "")
}

func (h *Handlers) lookup(ctx echo.Context) (*models.BucketObject, error) {
	key, err := objectKey(ctx)
	if err != nil {
		return nil, err
	}
	return h.index.GetObject(ctx.Request().Context(), ctx.Param("name"), key)
}

func (h *Handlers) stream(ctx echo.Context, hash, contentType string) error {
	reader, err := h.objects.Open(ctx.Request().Context(), hash)
	if err != nil {
		return BlobError(ctx, hash, err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("hash", hash).Msg("Failed to close blob")
		}
	}()

	if contentType == "" {
		contentType = defaultContentType
	}
	return ctx.Stream(http.StatusOK, contentType, reader)
}

// BlobError maps a failed blob read to a JSON response.
func BlobError(ctx echo.Context, hash string, err error) error {
	var invalidHash store.InvalidHashError
	switch {
	case errors.As(err, &invalidHash):
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid hash format",
		})
	case errors.Is(err, objectstore.ErrNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "file not found",
		})
	default:
		log.Error().Err(err).Str("hash", hash).Msg("Failed to read blob")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to download file",
		})
	}
}

// objectKey returns the unescaped wildcard key.
func objectKey(ctx echo.Context) (string, error) {
	key, err := url.PathUnescape(ctx.Param("*"))
	if err != nil || key == "" {
		return "", fmt.Errorf("%w: %q", bucket.ErrInvalidKey, ctx.Param("*"))
	}
	return key, nil
}

func bucketError(ctx echo.Context, err error, message string) error {
	switch {
	case errors.Is(err, bucket.ErrBucketNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Bucket not found",
		})
	case errors.Is(err, bucket.ErrInvalidBucketName):
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid bucket name",
		})
	default:
		log.Error().Err(err).Str("bucket", ctx.Param("name")).Msg(message)
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": message,
		})
	}
}

func objectError(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, bucket.ErrObjectNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Object not found",
		})
	case errors.Is(err, bucket.ErrInvalidKey):
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid object key",
		})
	default:
		return bucketError(ctx, err, "Failed to get object")
	}
}
