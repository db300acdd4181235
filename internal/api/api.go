package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"costbasis/pkg/portfolio"
)

// maxBodySize bounds JSON and CSV request bodies.
const maxBodySize = 32 << 20

// NewRouter builds the HTTP API router. Requests are logged through the
// core's logger, or slog.Default when core is nil.
func NewRouter(core *portfolio.Core) http.Handler {
	logger := slog.Default()
	if core != nil {
		logger = core.Logger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &handler{core: core}

	r.Get("/api/health", h.health)

	// Imports
	r.Get("/api/imports", h.listImports)
	r.Post("/api/imports", h.importRows)
	r.Post("/api/imports/csv", h.importCSV)
	r.Delete("/api/imports/{id}", h.deleteImport)

	// Transactions
	r.Get("/api/transactions", h.getTransactions)

	// Profit and loss
	r.Get("/api/pnl/realized", h.getRealized)
	r.Get("/api/pnl/unrealized", h.getUnrealized)
	r.Post("/api/pnl/compute", h.computePnL)

	// Prices
	r.Get("/api/prices", h.getPrices)
	r.Post("/api/prices/update", h.updatePrice)
	r.Post("/api/prices/manual", h.manualUpdatePrice)
	r.Post("/api/prices/refresh", h.refreshPrices)

	// Snapshots and returns
	r.Get("/api/snapshots", h.getSnapshots)
	r.Post("/api/snapshots", h.takeSnapshot)
	r.Get("/api/returns", h.getReturns)

	// Stateless metrics
	r.Post("/api/metrics/twr", h.computeTWR)
	r.Post("/api/metrics/xirr", h.computeXIRR)

	// Operation logs
	r.Get("/api/operation-logs", h.getOperationLogs)

	return r
}

type handler struct {
	core *portfolio.Core
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if ew, ok := w.(interface{ SetErrorMessage(string) }); ok {
		ew.SetErrorMessage(message)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
