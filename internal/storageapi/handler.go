// Package storageapi implements the HTTP surface of cmd/storageservice (§6.2): bucket and object management backed
// by internal/objectstore, reachable either from the backend's administrative calls (internal/storageclient) or
// directly from end-user browsers performing the direct-PUT upload and download/view steps of the File
// Coordinator's three-step protocol (§4.7).
package storageapi

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/selfdb-io/selfdb/internal/objectstore"
)

// Handler serves the storage service's HTTP API.
type Handler struct {
	store       *objectstore.Store
	externalURL string
	secretKey   string
	issuer      string
	log         zerolog.Logger
}

// NewHandler builds a storage service Handler. secretKey and issuer must match the values the backend signs tokens
// with, since both the administrative handshake token and end-user tickets are verified against them independently
// of the control-plane database. externalURL is this service's own externally-reachable base URL, embedded in the
// upload URLs handed back to end clients.
func NewHandler(store *objectstore.Store, externalURL, secretKey, issuer string, logger zerolog.Logger) *Handler {
	return &Handler{
		store:       store,
		externalURL: strings.TrimRight(externalURL, "/"),
		secretKey:   secretKey,
		issuer:      issuer,
		log:         logger.With().Str("component", "storage_api").Logger(),
	}
}
