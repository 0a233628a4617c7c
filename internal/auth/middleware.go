package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/httputil"
)

// PrincipalClass identifies the class of principal an endpoint requires.
type PrincipalClass int

const (
	// Any allows authenticated users, the anonymous role, and unauthenticated requests.
	Any PrincipalClass = iota
	// AnonOrUser allows authenticated users and the anonymous role, but not unauthenticated requests.
	AnonOrUser
	// User requires an authenticated user. Tickets of inactive users never resolve to a Principal, so this admits the
	// same principals as ActiveUser.
	User
	// ActiveUser requires an authenticated, active user.
	ActiveUser
	// Superuser requires an authenticated, active, superuser.
	Superuser
)

// Principal is the resolved identity of a request: an authenticated user, the anonymous role, or none.
type Principal struct {
	UserID      uuid.UUID
	IsSuperuser bool
	IsAnon      bool
	IsNone      bool
}

const principalLocalsKey = "principal"

// UserStore resolves a user ID to its active/superuser status so the gate can enforce the ticket invariant that an
// access token is only valid while the referenced user is still active.
type UserStore interface {
	IsActiveSuperuser(ctx context.Context, userID uuid.UUID) (active, superuser bool, err error)
}

// Gate implements the Auth Gate: it resolves the request's apikey/Bearer credentials to a Principal and enforces a
// per-route required PrincipalClass.
type Gate struct {
	secret    string
	issuer    string
	anonKey   string
	users     UserStore
	publicSet map[string]struct{}
}

// NewGate builds an Auth Gate. publicPaths lists routes that never require the anon key (API docs, OpenAPI JSON,
// static assets).
func NewGate(secret, issuer, anonKey string, users UserStore, publicPaths ...string) *Gate {
	g := &Gate{secret: secret, issuer: issuer, anonKey: anonKey, users: users, publicSet: make(map[string]struct{}, len(publicPaths))}
	for _, p := range publicPaths {
		g.publicSet[p] = struct{}{}
	}
	return g
}

// Require returns Fiber middleware enforcing that the resolved Principal belongs to class.
func (g *Gate) Require(class PrincipalClass) fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		principal, err := g.resolve(c)
		if errors.Is(err, errMissingAPIKey) {
			return httputil.Fail(c, fiber.StatusUnauthorized, apierr.Unauthorized, "missing or invalid apikey")
		}
		if err != nil {
			return err
		}

		if !satisfies(principal, class) {
			if principal.IsNone {
				return httputil.Fail(c, fiber.StatusUnauthorized, apierr.Unauthorized, "authentication required")
			}
			return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "insufficient privileges")
		}

		c.Locals(principalLocalsKey, principal)
		return c.Next()
	}
}

// resolve implements the Auth Gate algorithm in §4.2: bearer ticket first, then the anon key, then none. The apikey
// gate on step 1 only blocks requests to non-public paths that present neither a valid apikey nor a bearer ticket.
func (g *Gate) resolve(c fiber.Ctx) (Principal, error) {
	apikey := firstNonEmpty(c.Get("apikey"), c.Query("apikey"))
	bearer := bearerToken(c.Get("Authorization"))

	if bearer != "" {
		principal, err := g.resolveBearer(c.Context(), bearer)
		if err == nil {
			return principal, nil
		}
		if !errors.Is(err, errInvalidBearer) {
			return Principal{}, err
		}
	}

	if apikey != "" && apikey == g.anonKey {
		return Principal{IsAnon: true}, nil
	}

	if _, public := g.publicSet[c.Path()]; public {
		return Principal{IsNone: true}, nil
	}

	if apikey != g.anonKey {
		return Principal{}, errMissingAPIKey
	}

	return Principal{IsNone: true}, nil
}

var (
	errInvalidBearer = errors.New("invalid bearer ticket")
	errMissingAPIKey = errors.New("missing or invalid apikey")
)

func (g *Gate) resolveBearer(ctx context.Context, tokenStr string) (Principal, error) {
	claims, err := ValidateAccessToken(tokenStr, g.secret, g.issuer)
	if err != nil {
		return Principal{}, errInvalidBearer
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, errInvalidBearer
	}

	active, superuser, err := g.users.IsActiveSuperuser(ctx, userID)
	if err != nil {
		return Principal{}, errInvalidBearer
	}
	if !active {
		return Principal{}, errInvalidBearer
	}

	return Principal{UserID: userID, IsSuperuser: superuser}, nil
}

func satisfies(p Principal, class PrincipalClass) bool {
	switch class {
	case Any:
		return true
	case AnonOrUser:
		return !p.IsNone
	case User, ActiveUser:
		return !p.IsNone && !p.IsAnon
	case Superuser:
		return !p.IsNone && !p.IsAnon && p.IsSuperuser
	default:
		return false
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FromContext extracts the Principal stored by Gate.Require.
func FromContext(c fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(principalLocalsKey).(Principal)
	return p, ok
}
