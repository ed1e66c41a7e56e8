package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"OctaMuse/cache"
	"OctaMuse/config"
	"OctaMuse/core/auth"
	"OctaMuse/core/credit"
	"OctaMuse/core/generation"
	"OctaMuse/repository"
)

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

// APIHandler holds the dependencies shared by all HTTP handlers.
type APIHandler struct {
	userRepo  repository.UserRepository
	trackRepo repository.TrackRepository
	ledger    *credit.Ledger
	orch      *generation.Orchestrator
	sessions  *cache.SessionStore
	cfg       *config.Config
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(userRepo repository.UserRepository, trackRepo repository.TrackRepository,
	ledger *credit.Ledger, orch *generation.Orchestrator, sessions *cache.SessionStore,
	cfg *config.Config) *APIHandler {
	return &APIHandler{
		userRepo:  userRepo,
		trackRepo: trackRepo,
		ledger:    ledger,
		orch:      orch,
		sessions:  sessions,
		cfg:       cfg,
	}
}

// AuthMiddleware is a middleware function that checks for a valid JWT token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1], h.cfg.JWTSecret)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, usernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
