package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"bptools/pkg/db"
)

// Store answers read queries over recorded filings.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &Store{pool: pool}, nil
}

// Filings lists the most recent filings, optionally restricted to one folder.
func (s *Store) Filings(ctx context.Context, folder string, limit int) ([]Filing, error) {
	limit = clampLimit(limit)
	var rows []Filing
	if folder == "" {
		err := db.Select(ctx, s.pool, &rows, `
SELECT id, file, action, folder, attributes, destination, size, sha256, at
FROM filings
ORDER BY at DESC
LIMIT $1
`, limit)
		return rows, err
	}

	err := db.Select(ctx, s.pool, &rows, `
SELECT id, file, action, folder, attributes, destination, size, sha256, at
FROM filings
WHERE folder = $1
ORDER BY at DESC
LIMIT $2
`, folder, limit)
	return rows, err
}

// Folders returns every folder with at least one filing.
func (s *Store) Folders(ctx context.Context) ([]string, error) {
	var folders []string
	err := db.Select(ctx, s.pool, &folders, `
SELECT DISTINCT folder
FROM filings
WHERE action = 'filed'
ORDER BY folder
`)
	return folders, err
}

type filingLister interface {
	Filings(ctx context.Context, folder string, limit int) ([]Filing, error)
	Folders(ctx context.Context) ([]string, error)
}

// RegisterRoutes mounts the read API on r. The result pages served by cotcotd live on
// another origin, so the API answers cross-origin GETs.
func RegisterRoutes(r chi.Router, store filingLister) {
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept"},
			MaxAge:         int((10 * time.Minute).Seconds()),
		}))
		registerReadRoutes(r, store)
	})
}

func registerReadRoutes(r chi.Router, store filingLister) {
	r.Get("/v1/filings", func(w http.ResponseWriter, req *http.Request) {
		limit, err := parseLimit(req.URL.Query().Get("limit"))
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		folder := strings.TrimSpace(req.URL.Query().Get("folder"))
		filings, err := store.Filings(req.Context(), folder, limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, errors.New("failed to list filings"))
			return
		}
		if filings == nil {
			filings = []Filing{}
		}
		respondJSON(w, http.StatusOK, map[string]any{"filings": filings})
	})
	r.Get("/v1/folders", func(w http.ResponseWriter, req *http.Request) {
		folders, err := store.Folders(req.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, errors.New("failed to list folders"))
			return
		}
		if folders == nil {
			folders = []string{}
		}
		respondJSON(w, http.StatusOK, map[string]any{"folders": folders})
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return clampLimit(n), nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
