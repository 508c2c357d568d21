package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second

	headerObjectHash = "X-Object-Hash"
)

// Remote talks to a bucket gateway (see server/gateway) over HTTP.
type Remote struct {
	endpoint  string
	publicURL string
	timeout   time.Duration
	client    *retryablehttp.Client
}

// NewRemote returns a client for the gateway at endpoint. References handed out use
// publicURL so that they resolve through this process' /objects route.
func NewRemote(endpoint, publicURL string, timeout time.Duration) *Remote {
	return &Remote{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		publicURL: publicURL,
		timeout:   timeout,
		client:    CreateRetryableClient(defaultRetryMax, defaultRetryWaitMin, defaultRetryWaitMax),
	}
}

// CreateRetryableClient creates a retryablehttp client that only retries when no
// response was received at all.
func CreateRetryableClient(retryMax int, retryWaitMin, retryWaitMax time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Logger = nil
	client.CheckRetry = connectionErrorRetryPolicy
	return client
}

// connectionErrorRetryPolicy forwards every HTTP response, including 4xx and 5xx, and
// retries only transport failures.
func connectionErrorRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if resp != nil {
		return false, nil
	}

	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the final error itself
	}

	return false, nil
}

// Put uploads data to the gateway, creating the bucket on first use.
func (r *Remote) Put(ctx context.Context, key string, data []byte) (string, error) {
	bucketName, objectKey, err := SplitKey(key)
	if err != nil {
		return "", err
	}

	uploaded, status, err := r.upload(ctx, bucketName, objectKey, data, contentType(key, data))
	if err == nil && status == http.StatusNotFound {
		if err = r.createBucket(ctx, bucketName); err == nil {
			uploaded, status, err = r.upload(ctx, bucketName, objectKey, data, contentType(key, data))
		}
	}
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("upload %s: gateway returned status %d", key, status)
	}

	log.Debug().Str("key", key).Str("hash", uploaded.Hash).Msg("Object uploaded to gateway")
	return Reference(r.publicURL, uploaded.Hash), nil
}

func (r *Remote) upload(ctx context.Context, bucketName, objectKey string, data []byte, mimeType string) (*models.BucketUploadResponse, int, error) {
	body, formType, err := multipartBody(objectKey, data, mimeType)
	if err != nil {
		return nil, 0, err
	}

	reqCtx, cancel := r.requestContext(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost,
		r.endpoint+"/bucket/"+url.PathEscape(bucketName)+"/upload", body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", formType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("upload request failed: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var uploaded models.BucketUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if !ValidHash(uploaded.Hash) {
		return nil, 0, fmt.Errorf("gateway returned invalid hash %q", uploaded.Hash)
	}

	return &uploaded, resp.StatusCode, nil
}

// multipartBody builds the upload form in memory so retries can replay it.
func multipartBody(objectKey string, data []byte, mimeType string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("key", objectKey); err != nil {
		return nil, "", err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, objectKey))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (r *Remote) createBucket(ctx context.Context, bucketName string) error {
	reqCtx, cancel := r.requestContext(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost,
		r.endpoint+"/bucket/"+url.PathEscape(bucketName), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("create bucket request failed: %w", err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusConflict:
		log.Info().Str("bucket", bucketName).Msg("Bucket created on gateway")
		return nil
	default:
		return fmt.Errorf("create bucket %s: gateway returned status %d", bucketName, resp.StatusCode)
	}
}

// Locate asks the gateway for the hash currently stored under key.
func (r *Remote) Locate(ctx context.Context, key string) (string, error) {
	bucketName, objectKey, err := SplitKey(key)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := r.requestContext(ctx)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodHead,
		r.endpoint+"/bucket/"+url.PathEscape(bucketName)+"/object/"+escapeKey(objectKey), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("head request failed: %w", err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	default:
		return "", fmt.Errorf("locate %s: gateway returned status %d", key, resp.StatusCode)
	}

	hash := strings.ToLower(resp.Header.Get(headerObjectHash))
	if !ValidHash(hash) {
		return "", fmt.Errorf("locate %s: gateway returned invalid hash %q", key, hash)
	}

	return Reference(r.publicURL, hash), nil
}

// Get downloads the content behind ref.
func (r *Remote) Get(ctx context.Context, ref string) ([]byte, error) {
	hash, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}

	reader, err := r.Open(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

// Open streams content by hash from the gateway.
func (r *Remote) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	hash = strings.ToLower(hash)
	if !ValidHash(hash) {
		return nil, &ReferenceError{Ref: hash}
	}

	reqCtx, cancel := r.requestContext(ctx)

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, r.endpoint+"/file/"+hash+"/download", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("download request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
	case http.StatusNotFound:
		drain(resp)
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	default:
		drain(resp)
		cancel()
		return nil, fmt.Errorf("download %s: gateway returned status %d", hash, resp.StatusCode)
	}
}

func (r *Remote) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// escapeKey escapes each path segment of a key, keeping the separators.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close response body")
	}
}

// cancelOnClose releases the request context once the body has been consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
