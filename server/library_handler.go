package server

import (
	"net/http"

	"OctaMuse/logger"

	"github.com/gorilla/mux"
)

// ListTracksHandler returns the user's generated tracks, newest first.
func (h *APIHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tracks, err := h.trackRepo.ListByUser(r.Context(), userID)
	if err != nil {
		logger.Error("[Library] 查询曲目列表失败",
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}

// GetTrackHandler returns one of the user's tracks by id.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trackID := mux.Vars(r)["id"]
	track, err := h.trackRepo.GetByID(r.Context(), userID, trackID)
	if err != nil {
		logger.Error("[Library] 查询曲目失败",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, track)
}

// DeleteTrackHandler removes one of the user's tracks.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trackID := mux.Vars(r)["id"]
	track, err := h.trackRepo.GetByID(r.Context(), userID, trackID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	if err := h.trackRepo.Delete(r.Context(), userID, trackID); err != nil {
		logger.Error("[Library] 删除曲目失败",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.Info("[Library] 曲目已删除",
		logger.Int64("userId", userID),
		logger.String("trackId", trackID))
	w.WriteHeader(http.StatusNoContent)
}
