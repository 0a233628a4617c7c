package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/auth"
)

const (
	testSecret  = "test-secret"
	testIssuer  = "https://selfdb.test"
	testAnonKey = "test-anon-key"
)

type fakeChecker struct {
	active    bool
	superuser bool
}

func (f fakeChecker) IsActiveSuperuser(_ context.Context, _ uuid.UUID) (bool, bool, error) {
	return f.active, f.superuser, nil
}

func issueTestToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	signed, err := auth.NewAccessToken(userID, false, testSecret, time.Hour, testIssuer)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	return signed
}

func TestHubResolvePrincipalValidTicket(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	hub := NewHub(testSecret, testIssuer, testAnonKey, fakeChecker{active: true}, zerolog.Nop())

	_, ok := hub.resolvePrincipal(issueTestToken(t, userID), "")
	if !ok {
		t.Fatal("expected valid ticket for active user to resolve")
	}
}

func TestHubResolvePrincipalInactiveUserRejected(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	hub := NewHub(testSecret, testIssuer, testAnonKey, fakeChecker{active: false}, zerolog.Nop())

	if _, ok := hub.resolvePrincipal(issueTestToken(t, userID), ""); ok {
		t.Fatal("expected inactive user's ticket to be rejected")
	}
}

func TestHubResolvePrincipalAnonKey(t *testing.T) {
	t.Parallel()

	hub := NewHub(testSecret, testIssuer, testAnonKey, fakeChecker{}, zerolog.Nop())

	if _, ok := hub.resolvePrincipal("", testAnonKey); !ok {
		t.Fatal("expected matching anon key to resolve")
	}
	if _, ok := hub.resolvePrincipal("", "wrong-key"); ok {
		t.Fatal("expected mismatched anon key to be rejected")
	}
}

func TestHubResolvePrincipalNoCredentials(t *testing.T) {
	t.Parallel()

	hub := NewHub(testSecret, testIssuer, testAnonKey, fakeChecker{}, zerolog.Nop())

	if _, ok := hub.resolvePrincipal("", ""); ok {
		t.Fatal("expected no credentials to fail resolution")
	}
}

func TestHubRegisterUnregisterTracksClientCount(t *testing.T) {
	t.Parallel()

	hub := NewHub(testSecret, testIssuer, testAnonKey, fakeChecker{}, zerolog.Nop())
	client := newClient(hub, nil, zerolog.Nop())

	if err := hub.register(client); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	hub.unregister(client)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() = %d, want 0", got)
	}
}
