// Package storageclient is the control plane's HTTP client for the Object Store (cmd/storageservice). It implements
// the Store interfaces internal/bucket and internal/file depend on, translating each call into a request against the
// storage service's internal surface (§6.2).
package storageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/selfdb-io/selfdb/internal/auth"
)

// Client calls the storage service over HTTP. baseURL is the internal address used for server-to-server
// administrative calls (bucket CRUD, upload URL generation, object deletion); externalURL is the address embedded in
// download/view links handed back to end clients, which hit the storage service directly.
type Client struct {
	baseURL     string
	externalURL string
	secretKey   string
	issuer      string
	ttl         time.Duration
	httpClient  *http.Client
}

// New creates a storage service client. secretKey and issuer must match the values cmd/storageservice validates
// handshake tokens with (the shared SECRET_KEY and the backend's own SERVER_URL).
func New(baseURL, externalURL, secretKey, issuer string, handshakeTTL time.Duration, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		externalURL: strings.TrimRight(externalURL, "/"),
		secretKey:   secretKey,
		issuer:      issuer,
		ttl:         handshakeTTL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// handshakeToken mints the short-lived JWT the storage service verifies on every administrative call. Coordinator
// callers have already authorized the request against the metadata DB by the time they reach this client, so the
// token asserts a superuser-scoped backend identity rather than re-deriving the originating end user; the storage
// service only needs to know the call came from a holder of SECRET_KEY, not re-run bucket ownership checks that the
// Coordinator already performed. Direct browser-to-storage-service calls (upload-direct, download, view) are a
// separate path: those present the end user's own ticket, which cmd/storageservice validates against its local
// bucket metadata sidecar.
func (c *Client) handshakeToken() (string, error) {
	return auth.NewAccessToken(uuid.Nil, true, c.secretKey, c.ttl, c.issuer)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.handshakeToken()
	if err != nil {
		return nil, fmt.Errorf("mint handshake token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage service request failed: %w", err)
	}
	return resp, nil
}

func readErrorBody(resp *http.Response) string {
	detail, _ := io.ReadAll(resp.Body)
	return string(detail)
}

// CreateBucket implements bucket.Store.
func (c *Client) CreateBucket(ctx context.Context, storageName string, isPublic bool) error {
	resp, err := c.do(ctx, http.MethodPost, "/buckets", map[string]any{
		"name": storageName, "is_public": isPublic,
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("storage service returned status %d on create bucket: %s", resp.StatusCode, readErrorBody(resp))
	}
	return nil
}

// DeleteBucket implements bucket.Store.
func (c *Client) DeleteBucket(ctx context.Context, storageName string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/buckets/"+url.PathEscape(storageName), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("storage service returned status %d on delete bucket: %s", resp.StatusCode, readErrorBody(resp))
	}
	return nil
}

// UpdateBucketPolicy implements bucket.Store.
func (c *Client) UpdateBucketPolicy(ctx context.Context, storageName string, isPublic bool) error {
	resp, err := c.do(ctx, http.MethodPut, "/buckets/"+url.PathEscape(storageName), map[string]any{
		"is_public": isPublic,
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("storage service returned status %d on update bucket: %s", resp.StatusCode, readErrorBody(resp))
	}
	return nil
}

// BucketExists implements bucket.Store.
func (c *Client) BucketExists(ctx context.Context, storageName string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/buckets/"+url.PathEscape(storageName), nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("storage service returned status %d on get bucket: %s", resp.StatusCode, readErrorBody(resp))
	default:
		return true, nil
	}
}

type presignedUploadResponse struct {
	UploadURL string `json:"upload_url"`
	Method    string `json:"method"`
}

// GenerateUploadURL implements file.Store.
func (c *Client) GenerateUploadURL(ctx context.Context, bucketStorageName, objectKey, contentType string, ttl time.Duration) (string, string, error) {
	path := fmt.Sprintf("/files/presigned-url/upload/%s/%s", url.PathEscape(bucketStorageName), url.PathEscape(objectKey))
	resp, err := c.do(ctx, http.MethodPost, path, map[string]any{
		"content_type": contentType,
		"ttl_seconds":  int(ttl.Seconds()),
	})
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("storage service returned status %d on presigned url: %s", resp.StatusCode, readErrorBody(resp))
	}

	var out presignedUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode presigned url response: %w", err)
	}
	return out.UploadURL, out.Method, nil
}

// DeleteObject implements file.Store.
func (c *Client) DeleteObject(ctx context.Context, bucketStorageName, objectKey string) error {
	path := fmt.Sprintf("/files/%s/%s", url.PathEscape(bucketStorageName), url.PathEscape(objectKey))
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("storage service returned status %d on delete object: %s", resp.StatusCode, readErrorBody(resp))
	}
	return nil
}

// DownloadURL implements file.Store. It is constructed directly against the external base URL per §4.7 — no round
// trip to the storage service is needed to hand back a direct link.
func (c *Client) DownloadURL(bucketStorageName, objectKey string) string {
	return fmt.Sprintf("%s/files/download/%s/%s", c.externalURL, url.PathEscape(bucketStorageName), url.PathEscape(objectKey))
}

// ViewURL implements file.Store.
func (c *Client) ViewURL(bucketStorageName, objectKey, contentType string) string {
	u := fmt.Sprintf("%s/files/view/%s/%s", c.externalURL, url.PathEscape(bucketStorageName), url.PathEscape(objectKey))
	if contentType != "" {
		u += "?content_type=" + url.QueryEscape(contentType)
	}
	return u
}
