package storageclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/selfdb-io/selfdb/internal/auth"
)

const (
	testSecret = "test-secret-at-least-32-bytes-long"
	testIssuer = "https://backend.test"
)

func newTestClient(baseURL string) *Client {
	return New(baseURL, "https://storage.external", testSecret, testIssuer, time.Hour, 5*time.Second)
}

func TestCreateBucketSendsHandshakeToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.CreateBucket(context.Background(), "photos", true); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	if gotBody["name"] != "photos" || gotBody["is_public"] != true {
		t.Fatalf("unexpected body: %+v", gotBody)
	}

	token := gotAuth[len("Bearer "):]
	claims, err := auth.ValidateAccessToken(token, testSecret, testIssuer)
	if err != nil {
		t.Fatalf("handshake token did not validate: %v", err)
	}
	if !claims.IsSuperuser {
		t.Fatal("expected handshake token to carry is_superuser=true")
	}
}

func TestBucketExists(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/buckets/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	exists, err := c.BucketExists(context.Background(), "photos")
	if err != nil || !exists {
		t.Fatalf("BucketExists(photos) = %v, %v, want true, nil", exists, err)
	}

	exists, err = c.BucketExists(context.Background(), "missing")
	if err != nil || exists {
		t.Fatalf("BucketExists(missing) = %v, %v, want false, nil", exists, err)
	}
}

func TestGenerateUploadURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/presigned-url/upload/photos/key-1" {
			t.Errorf("path = %s, want /files/presigned-url/upload/photos/key-1", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(presignedUploadResponse{
			UploadURL: "https://storage.external/files/upload-direct/photos/key-1", Method: "PUT",
		})
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	uploadURL, method, err := c.GenerateUploadURL(context.Background(), "photos", "key-1", "image/png", time.Hour)
	if err != nil {
		t.Fatalf("GenerateUploadURL: %v", err)
	}
	if method != "PUT" || uploadURL == "" {
		t.Fatalf("unexpected result: %q, %q", uploadURL, method)
	}
}

func TestDownloadAndViewURL(t *testing.T) {
	t.Parallel()
	c := newTestClient("http://internal.test")

	if got, want := c.DownloadURL("photos", "key-1"), "https://storage.external/files/download/photos/key-1"; got != want {
		t.Errorf("DownloadURL = %q, want %q", got, want)
	}
	if got, want := c.ViewURL("photos", "key-1", "image/png"), "https://storage.external/files/view/photos/key-1?content_type=image%2Fpng"; got != want {
		t.Errorf("ViewURL = %q, want %q", got, want)
	}
}

func TestDeleteBucketTreatsNotFoundAsSuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	if err := c.DeleteBucket(context.Background(), "gone"); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
}
