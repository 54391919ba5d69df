package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/pipeline"
	"github.com/chronopost/chronopost/internal/review"
)

// ReviewHandler serves the human review surface: pending drafts,
// approve/reject decisions, and the ready-to-post drain.
type ReviewHandler struct {
	queue  *review.Queue
	stats  StatsProvider
	logger *slog.Logger
}

// StatsProvider exposes cumulative pipeline statistics.
type StatsProvider interface {
	Stats() pipeline.Stats
}

// NewReviewHandler creates a review handler.
func NewReviewHandler(queue *review.Queue, stats StatsProvider, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		queue:  queue,
		stats:  stats,
		logger: logger,
	}
}

const defaultListLimit = 50

// ListPending handles GET /api/review/pending
func (h *ReviewHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.GetPending(r.Context(), defaultListLimit)
	if err != nil {
		h.logger.Error("failed to list pending items", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.QueueItem{}
	}
	writeJSON(w, h.logger, http.StatusOK, items)
}

// ListReady handles GET /api/review/ready
func (h *ReviewHandler) ListReady(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.GetApprovedReadyToPost(r.Context(), defaultListLimit)
	if err != nil {
		h.logger.Error("failed to list approved items", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.QueueItem{}
	}
	writeJSON(w, h.logger, http.StatusOK, items)
}

// ApproveRequest carries an optional reviewer edit.
type ApproveRequest struct {
	CorrectedContent string `json:"corrected_content"`
}

// Approve handles POST /api/review/{id}/approve
func (h *ReviewHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "/approve")
	if id == "" {
		http.Error(w, "Missing item id", http.StatusBadRequest)
		return
	}

	var req ApproveRequest
	if r.Body != nil {
		// An empty body approves as-is.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	item, err := h.queue.Approve(r.Context(), id, req.CorrectedContent)
	if err != nil {
		h.writeQueueError(w, "approve", id, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, item)
}

// RejectRequest carries the reviewer's reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/review/{id}/reject
func (h *ReviewHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "/reject")
	if id == "" {
		http.Error(w, "Missing item id", http.StatusBadRequest)
		return
	}

	var req RejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	item, err := h.queue.Reject(r.Context(), id, req.Reason)
	if err != nil {
		h.writeQueueError(w, "reject", id, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, item)
}

// MarkPostedRequest carries the platform post id.
type MarkPostedRequest struct {
	PostID string `json:"post_id"`
}

// MarkPosted handles POST /api/review/{id}/posted
func (h *ReviewHandler) MarkPosted(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "/posted")
	if id == "" {
		http.Error(w, "Missing item id", http.StatusBadRequest)
		return
	}

	var req MarkPostedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostID == "" {
		http.Error(w, "post_id is required", http.StatusBadRequest)
		return
	}

	item, err := h.queue.MarkPosted(r.Context(), id, req.PostID)
	if err != nil {
		h.writeQueueError(w, "mark posted", id, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, item)
}

// GetStats handles GET /api/stats
func (h *ReviewHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.stats.Stats())
}

func (h *ReviewHandler) writeQueueError(w http.ResponseWriter, action, id string, err error) {
	var queueErr *review.QueueError
	if errors.As(err, &queueErr) {
		http.Error(w, queueErr.Error(), http.StatusConflict)
		return
	}
	if strings.Contains(err.Error(), "not found") {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	h.logger.Error("queue operation failed", "action", action, "id", id, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// itemID extracts the item id from /api/review/{id}{suffix}.
func itemID(path, suffix string) string {
	trimmed := strings.TrimSuffix(path, suffix)
	id := strings.TrimPrefix(trimmed, "/api/review/")
	if id == trimmed || strings.Contains(id, "/") {
		return ""
	}
	return id
}
