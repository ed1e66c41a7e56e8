package server

import (
	"encoding/json"
	"net/http"

	"OctaMuse/logger"
)

// GetStatsHandler returns the user's credit balance and profile counters.
func (h *APIHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.ledger.GetOrCreate(userID)
	if err != nil {
		logger.Error("[Stats] 查询用户统计失败",
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// SetFavoriteGenreHandler updates the user's preferred genre.
func (h *APIHandler) SetFavoriteGenreHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Genre string `json:"genre"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Genre == "" {
		http.Error(w, "genre is required", http.StatusBadRequest)
		return
	}

	if err := h.ledger.SetFavoriteGenre(userID, req.Genre); err != nil {
		logger.Error("[Stats] 更新偏好曲风失败",
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetMembershipHandler changes the user's membership tier.
func (h *APIHandler) SetMembershipHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		MembershipType string `json:"membershipType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MembershipType == "" {
		http.Error(w, "membershipType is required", http.StatusBadRequest)
		return
	}

	if err := h.ledger.SetMembershipType(userID, req.MembershipType); err != nil {
		logger.Warn("[Stats] 会员变更失败",
			logger.Int64("userId", userID),
			logger.String("membershipType", req.MembershipType),
			logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := h.ledger.GetOrCreate(userID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
