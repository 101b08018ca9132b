package handler

import (
	"log/slog"
	"net/http"

	"github.com/agamify/agamify/internal/service"
	"github.com/agamify/agamify/internal/store"
)

// DatabaseHandler serves the connectivity-check and catalog-seed endpoint.
type DatabaseHandler struct {
	health  store.HealthStore
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewDatabaseHandler creates a DatabaseHandler.
func NewDatabaseHandler(health store.HealthStore, catalog *service.CatalogService, logger *slog.Logger) *DatabaseHandler {
	return &DatabaseHandler{health: health, catalog: catalog, logger: logger}
}

type databaseStatus struct {
	Status string       `json:"status"`
	Stats  *store.Stats `json:"stats"`
}

// HandleTest pings the database and reports per-table row counts.
//
// GET /api/database/test
func (h *DatabaseHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.logger.Error("database ping failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "Database connection failed",
		})
		return
	}

	stats, err := h.health.Stats(r.Context())
	if err != nil {
		h.logger.Error("database stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "Database connection failed",
		})
		return
	}

	writeSuccess(w, http.StatusOK, databaseStatus{Status: "connected", Stats: stats})
}

// HandleSeed seeds the default supported-framework catalog. Idempotent.
//
// POST /api/database/test
func (h *DatabaseHandler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.SeedDefaults(r.Context()); err != nil {
		h.logger.Error("catalog seeding failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Default framework catalog seeded")
}
