package storageapi

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/selfdb-io/selfdb/internal/apierr"
	"github.com/selfdb-io/selfdb/internal/auth"
	"github.com/selfdb-io/selfdb/internal/httputil"
	"github.com/selfdb-io/selfdb/internal/objectstore"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>" header, or "" if absent/malformed.
func bearerToken(c fiber.Ctx) string {
	h := c.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// requireAdmin validates the Authorization header as a superuser-scoped handshake token minted by
// internal/storageclient. Every administrative endpoint (bucket CRUD, upload-URL generation, server-side object
// deletion) is reachable only from the backend, which holds the shared secret; it never needs to re-derive which end
// user originated the call, since the Coordinator has already authorized that before reaching the storage service.
func (h *Handler) requireAdmin(c fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierr.Unauthorized, "missing bearer token")
	}
	claims, err := auth.ValidateAccessToken(token, h.secretKey, h.issuer)
	if err != nil {
		return httputil.Fail(c, fiber.StatusUnauthorized, apierr.Unauthorized, "invalid or expired token")
	}
	if !claims.IsSuperuser {
		return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "administrative token required")
	}
	return nil
}

// authorizeObjectAccess validates the caller's own ticket (issued by the backend to the end user) against the
// bucket's locally cached metadata for the direct upload/download/view paths (§4.8): a superuser or the bucket owner
// may always read or write; anyone else may only read from a public bucket, and only to download/view, never to
// write. write controls whether the caller intends to create or overwrite an object.
func (h *Handler) authorizeObjectAccess(c fiber.Ctx, meta *objectstore.BucketMetadata, write bool) error {
	token := bearerToken(c)
	if token == "" {
		if !write && meta.IsPublic {
			return nil
		}
		return httputil.Fail(c, fiber.StatusUnauthorized, apierr.Unauthorized, "missing bearer token")
	}

	claims, err := auth.ValidateAccessToken(token, h.secretKey, h.issuer)
	if err != nil {
		if !write && meta.IsPublic {
			return nil
		}
		return httputil.Fail(c, fiber.StatusUnauthorized, apierr.Unauthorized, "invalid or expired token")
	}

	if claims.IsSuperuser || claims.Subject == meta.OwnerID {
		return nil
	}
	if !write && meta.IsPublic {
		return nil
	}
	return httputil.Fail(c, fiber.StatusForbidden, apierr.Forbidden, "not authorized for this bucket")
}
