package handler

import (
	"time"

	"vanishchat/backend/internal/chathub"
	"vanishchat/backend/internal/config"
	"vanishchat/backend/internal/store"
)

// Handler holds the shared dependencies of the HTTP edge.
type Handler struct {
	Hub      *chathub.Manager
	Store    *store.Store
	Registry *chathub.Registry
	Cfg      config.Config

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewHandler(hub *chathub.Manager, s *store.Store, registry *chathub.Registry, cfg config.Config) *Handler {
	return &Handler{Hub: hub, Store: s, Registry: registry, Cfg: cfg, Now: time.Now}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
