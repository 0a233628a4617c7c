package storageapi

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/objectstore"
)

const (
	testSecret      = "test-secret-at-least-32-bytes-long"
	testIssuer      = "https://backend.test"
	testExternalURL = "https://storage.test"
)

var testTimeout = fiber.TestConfig{Timeout: 5 * time.Second}

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestApp(t *testing.T) (*fiber.App, *Handler, *objectstore.Store) {
	t.Helper()
	store, err := objectstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	h := NewHandler(store, testExternalURL, testSecret, testIssuer, zerolog.Nop())
	app := fiber.New()
	Register(app, h)
	return app, h, store
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := auth.NewAccessToken(uuid.Nil, true, testSecret, time.Hour, testIssuer)
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	return tok
}

func userToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, err := auth.NewAccessToken(userID, false, testSecret, time.Hour, testIssuer)
	if err != nil {
		t.Fatalf("mint user token: %v", err)
	}
	return tok
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return b
}

func parseSuccess(t *testing.T, body []byte) successEnvelope {
	t.Helper()
	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal success response %q: %v", string(body), err)
	}
	return env
}

func parseError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal error response %q: %v", string(body), err)
	}
	return env
}
