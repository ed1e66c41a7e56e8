package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"OctaMuse/core/generation"
	"OctaMuse/core/provider"
	"OctaMuse/logger"
	"OctaMuse/model"

	"github.com/gorilla/websocket"
)

// StartGenerationHandler submits a new generation job. The call returns as
// soon as the provider accepts; clients observe progress via the state
// endpoints.
func (h *APIHandler) StartGenerationHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req model.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = h.orch.Start(r.Context(), userID, &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, h.orch.State(userID))
	case errors.Is(err, generation.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, generation.ErrBusy):
		writeError(w, http.StatusConflict, "a generation is already in progress")
	case errors.Is(err, generation.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, provider.ErrInvalidRequest):
		writeError(w, http.StatusUnprocessableEntity, "generation request rejected by provider")
	default:
		logger.Error("[Generate] 提交失败",
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "generation provider unavailable")
	}
}

// ResumeGenerationHandler re-attaches to a pending job persisted before a
// restart. Called once per app foreground.
func (h *APIHandler) ResumeGenerationHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	err = h.orch.Resume(r.Context(), userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, h.orch.State(userID))
	case errors.Is(err, generation.ErrJobNotFound):
		writeJSON(w, http.StatusOK, h.orch.State(userID))
	case errors.Is(err, generation.ErrBusy):
		writeJSON(w, http.StatusOK, h.orch.State(userID))
	default:
		logger.Error("[Generate] 恢复任务失败",
			logger.Int64("userId", userID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to resume generation")
	}
}

// GenerationStateHandler returns the current session snapshot.
func (h *APIHandler) GenerationStateHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, h.orch.State(userID))
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GenerationStreamHandler pushes state transitions over a websocket so the
// client does not have to poll the state endpoint.
func (h *APIHandler) GenerationStreamHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.orch.Subscribe(userID)
	defer cancel()

	// 先推送当前状态，避免客户端错过已发生的转移
	if err := conn.WriteJSON(h.orch.State(userID)); err != nil {
		return
	}

	// Reader goroutine only to detect the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				logger.Warn("websocket write", logger.ErrorField(err))
				return
			}
		case <-done:
			return
		}
	}
}
