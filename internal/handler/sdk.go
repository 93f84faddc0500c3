package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/penshort/beacon/internal/collector"
	"github.com/penshort/beacon/internal/model"
)

// SDKHandler serves what SDKs read back: behavior settings and the content
// that follows a journey trigger.
type SDKHandler struct {
	settings model.BehaviorSettings
	content  *collector.ContentQueue
	salt     string
	logger   *slog.Logger
}

// NewSDKHandler creates an SDKHandler.
func NewSDKHandler(settings model.BehaviorSettings, content *collector.ContentQueue, salt string, logger *slog.Logger) *SDKHandler {
	if content == nil {
		content = collector.NewContentQueue()
	}
	return &SDKHandler{
		settings: settings,
		content:  content,
		salt:     salt,
		logger:   logger.With("component", "handler.sdk"),
	}
}

// settingsResponse wraps behavior settings the way SDKs expect.
type settingsResponse struct {
	C model.BehaviorSettings `json:"c"`
}

// Settings serves behavior settings.
//
// GET /o/sdk?method=sc
func (h *SDKHandler) Settings(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r) {
		return
	}
	if method := r.Form.Get("method"); method != "sc" {
		writeResult(w, http.StatusBadRequest, `unsupported method "`+method+`"`)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{C: h.settings})
}

// Content hands out the next queued content block, or {} when none is
// queued.
//
// GET /o/sdk/content
func (h *SDKHandler) Content(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r) {
		return
	}
	c, ok := h.content.Next()
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	h.logger.Debug("content served", "device_id", r.Form.Get(model.ParamDeviceID))
	writeJSON(w, http.StatusOK, c)
}

// PushContent queues a content block for the next fetch.
//
// POST /content
func (h *SDKHandler) PushContent(w http.ResponseWriter, r *http.Request) {
	var c model.Content
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeResult(w, http.StatusBadRequest, "malformed content")
		return
	}
	if !h.content.Push(c) {
		writeResult(w, http.StatusUnprocessableEntity, "content requires html")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": h.content.Len()})
}

func (h *SDKHandler) verify(w http.ResponseWriter, r *http.Request) bool {
	if !parseParams(w, r) {
		return false
	}
	if err := collector.Verify(r.Form, h.salt); err != nil {
		status, result := verifyStatus(err)
		writeResult(w, status, result)
		return false
	}
	return true
}
