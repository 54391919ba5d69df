package api

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/chronopost/chronopost/internal/auth"
	"github.com/chronopost/chronopost/internal/review"
)

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, queue *review.Queue, stats StatsProvider, authConfig auth.Config, logger *slog.Logger) {
	authHandler := NewAuthHandler(authConfig, logger)
	reviewHandler := NewReviewHandler(queue, stats, logger)

	authMiddleware := auth.Middleware(authConfig)

	// Authentication routes (login is public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		authMiddleware(http.HandlerFunc(authHandler.ValidateToken)).ServeHTTP(w, r)
	})

	// Review queue routes (reviewer only)
	mux.HandleFunc("/api/review/pending", func(w http.ResponseWriter, r *http.Request) {
		if handleCORSPreflight(w, r, "GET, OPTIONS") {
			return
		}
		authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				reviewHandler.ListPending(w, r)
			} else {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		})).ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/review/ready", func(w http.ResponseWriter, r *http.Request) {
		if handleCORSPreflight(w, r, "GET, OPTIONS") {
			return
		}
		authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				reviewHandler.ListReady(w, r)
			} else {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		})).ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/review/", func(w http.ResponseWriter, r *http.Request) {
		if handleCORSPreflight(w, r, "POST, OPTIONS") {
			return
		}
		authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			switch {
			case strings.HasSuffix(r.URL.Path, "/approve"):
				reviewHandler.Approve(w, r)
			case strings.HasSuffix(r.URL.Path, "/reject"):
				reviewHandler.Reject(w, r)
			case strings.HasSuffix(r.URL.Path, "/posted"):
				reviewHandler.MarkPosted(w, r)
			default:
				http.NotFound(w, r)
			}
		})).ServeHTTP(w, r)
	})

	// Pipeline statistics (reviewer only)
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		if handleCORSPreflight(w, r, "GET, OPTIONS") {
			return
		}
		authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				reviewHandler.GetStats(w, r)
			} else {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		})).ServeHTTP(w, r)
	})

	// CORS preflight fallback
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if handleCORSPreflight(w, r, "GET, POST, PUT, DELETE, OPTIONS") {
			return
		}
		http.NotFound(w, r)
	})
}

func handleCORSPreflight(w http.ResponseWriter, r *http.Request, methods string) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(http.StatusOK)
	return true
}
