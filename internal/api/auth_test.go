package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/config"
	"github.com/selfdb-io/selfdb/internal/postgres"
	"github.com/selfdb-io/selfdb/internal/user"
)

var testTimeout = fiber.TestConfig{Timeout: 30 * time.Second}

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
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

func parseError(t *testing.T, body []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal error response %q: %v", string(body), err)
	}
	return env
}

func parseSuccess(t *testing.T, body []byte) successEnvelope {
	t.Helper()
	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal success response %q: %v", string(body), err)
	}
	return env
}

func jsonReq(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formReq(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func doReq(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, testTimeout)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

// fakeUserRepo implements user.Repository in memory for handler tests that don't need real persistence.
type fakeUserRepo struct {
	byID    map[uuid.UUID]*user.User
	byEmail map[string]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[uuid.UUID]*user.User{}, byEmail: map[string]*user.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, params user.CreateParams) (*user.User, error) {
	if _, exists := r.byEmail[params.Email]; exists {
		return nil, user.ErrEmailTaken
	}
	u := &user.User{
		ID: uuid.New(), Email: params.Email, HashedPassword: params.HashedPassword,
		IsActive: params.IsActive, IsSuperuser: params.IsSuperuser,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return u, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) List(_ context.Context, _, _ int) ([]user.User, error) { return nil, nil }
func (r *fakeUserRepo) Count(_ context.Context) (int, error)                  { return len(r.byID), nil }

func (r *fakeUserRepo) Update(_ context.Context, id uuid.UUID, params user.UpdateParams) (*user.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if params.IsActive != nil {
		u.IsActive = *params.IsActive
	}
	if params.IsSuperuser != nil {
		u.IsSuperuser = *params.IsSuperuser
	}
	u.UpdatedAt = time.Now()
	return u, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	u, ok := r.byID[id]
	if !ok {
		return user.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, u.Email)
	return nil
}

func (r *fakeUserRepo) IsActiveSuperuser(_ context.Context, id uuid.UUID) (bool, bool, error) {
	u, ok := r.byID[id]
	if !ok {
		return false, false, nil
	}
	return u.IsActive, u.IsSuperuser, nil
}

// setupAuthTestDB returns a RefreshStore backed by a migrated database, or skips when TEST_DATABASE_URL is unset.
// Matches the pattern internal/auth's own service tests use, since the refresh-token store has no in-memory fake.
func setupAuthTestDB(t *testing.T) *auth.RefreshStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres-backed auth handler test")
	}
	if err := postgres.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	return auth.NewRefreshStore(pool)
}

func testAuthConfig() *config.BackendConfig {
	return &config.BackendConfig{
		SecretKey:         "test-secret-key-at-least-32-bytes-long",
		ServerURL:         "https://test.example.com",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   30 * 24 * time.Hour,
		Argon2Memory:      19 * 1024,
		Argon2Iterations:  2,
		Argon2Parallelism: 1,
		Argon2SaltLength:  16,
		Argon2KeyLength:   32,
	}
}

func testAuthApp(t *testing.T) *fiber.App {
	t.Helper()
	refresh := setupAuthTestDB(t)
	svc, err := auth.NewService(newFakeUserRepo(), refresh, testAuthConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	handler := NewAuthHandler(svc, zerolog.Nop())

	app := fiber.New()
	app.Post("/register", handler.Register)
	app.Post("/login", handler.Login)
	app.Post("/refresh", handler.Refresh)
	return app
}

func TestRegisterHandlerInvalidJSON(t *testing.T) {
	t.Parallel()
	app := testAuthApp(t)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/register", "not json"))
	body := readBody(t, resp)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
	parseError(t, body)
}

func TestRegisterHandlerSuccess(t *testing.T) {
	t.Parallel()
	app := testAuthApp(t)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/register", `{"email":"alice@example.com","password":"supersecret1"}`))
	body := readBody(t, resp)

	if resp.StatusCode != fiber.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusCreated)
	}
	env := parseSuccess(t, body)
	var tr tokenResponse
	if err := json.Unmarshal(env.Data, &tr); err != nil {
		t.Fatalf("unmarshal token response: %v", err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		t.Error("Register() should return both tokens")
	}
}

func TestRegisterHandlerInvalidEmail(t *testing.T) {
	t.Parallel()
	app := testAuthApp(t)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/register", `{"email":"not-an-email","password":"supersecret1"}`))
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusUnprocessableEntity)
	}
}

func TestLoginHandlerInvalidCredentials(t *testing.T) {
	t.Parallel()
	app := testAuthApp(t)

	resp := doReq(t, app, formReq(http.MethodPost, "/login", "username=nobody@example.com&password=supersecret1"))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestLoginHandlerSuccess(t *testing.T) {
	t.Parallel()
	app := testAuthApp(t)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/register", `{"email":"bob@example.com","password":"supersecret1"}`))
	readBody(t, resp)

	resp = doReq(t, app, formReq(http.MethodPost, "/login", "username=bob@example.com&password=supersecret1"))
	body := readBody(t, resp)

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	env := parseSuccess(t, body)
	var tr tokenResponse
	if err := json.Unmarshal(env.Data, &tr); err != nil {
		t.Fatalf("unmarshal token response: %v", err)
	}
	if tr.AccessToken == "" {
		t.Error("Login() should return an access token")
	}
}

func TestRefreshHandlerMissingToken(t *testing.T) {
	t.Parallel()
	app := testAuthApp(t)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/refresh", `{}`))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
}

func TestRefreshHandlerSuccess(t *testing.T) {
	t.Parallel()
	app := testAuthApp(t)

	resp := doReq(t, app, jsonReq(http.MethodPost, "/register", `{"email":"carol@example.com","password":"supersecret1"}`))
	regBody := readBody(t, resp)
	regEnv := parseSuccess(t, regBody)
	var reg tokenResponse
	if err := json.Unmarshal(regEnv.Data, &reg); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}

	resp = doReq(t, app, jsonReq(http.MethodPost, "/refresh", `{"refresh_token":"`+reg.RefreshToken+`"}`))
	body := readBody(t, resp)

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	env := parseSuccess(t, body)
	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(env.Data, &refreshed); err != nil {
		t.Fatalf("unmarshal refresh response: %v", err)
	}
	if refreshed.RefreshToken == reg.RefreshToken {
		t.Error("refresh_token was not rotated")
	}
}
