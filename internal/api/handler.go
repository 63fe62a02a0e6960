package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// maxUploadBytes bounds the total multipart form size for one upload.
const maxUploadBytes = 32 << 20 // 32 MB

// documentSlots are the named multipart file fields checked in order. The
// slot name is a hint only; classification always runs on the OCR text.
var documentSlots = []string{"aadhaar", "pan", "dl", "file"}

// Handler holds dependencies for API handlers.
type Handler struct {
	store     domain.Store
	cache     domain.Cache
	bus       domain.EventBus
	extractor domain.TextExtractor
	scorer    *scoring.Engine
	engine    *rules.Engine
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.Store, cache domain.Cache, bus domain.EventBus, extractor domain.TextExtractor, scorer *scoring.Engine, engine *rules.Engine, version string) *Handler {
	return &Handler{
		store:     store,
		cache:     cache,
		bus:       bus,
		extractor: extractor,
		scorer:    scorer,
		engine:    engine,
		version:   version,
	}
}

// UploadResponse is the response for POST /upload.
type UploadResponse struct {
	Record   *domain.SubmissionRecord `json:"record"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Upload handles POST /upload: one multipart call carrying the declared
// identity and up to one image per document slot. Every attached document is
// OCRed and scored; the aggregated record lands in the pending store.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid multipart form",
		})
		return
	}

	declared := domain.DeclaredIdentity{
		Name:        strings.TrimSpace(r.FormValue("userName")),
		DateOfBirth: strings.TrimSpace(r.FormValue("userDob")),
		Gender:      strings.TrimSpace(r.FormValue("userGender")),
	}

	files := collectFiles(r.MultipartForm)
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "No documents uploaded",
		})
		return
	}

	var docs []domain.DocumentScoreResult
	var alerts []domain.AmlAlert

	for _, fh := range files {
		image, err := readFile(fh)
		if err != nil {
			slog.Error("failed to read uploaded file", "filename", fh.Filename, "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "failed to read uploaded file: " + fh.Filename,
			})
			return
		}

		text, err := h.extractor.ExtractText(ctx, image)
		if err != nil {
			slog.Error("text extraction failed", "filename", fh.Filename, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "text extraction failed",
			})
			return
		}

		result, docAlerts, err := h.scorer.ScoreDocument(ctx, text, declared)
		if err != nil {
			slog.Error("document scoring failed", "filename", fh.Filename, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "document scoring failed",
			})
			return
		}

		docs = append(docs, *result)
		alerts = append(alerts, docAlerts...)
	}

	record := scoring.Aggregate(declared, docs, alerts)

	id, err := h.store.InsertSubmission(ctx, domain.StorePending, record)
	if err != nil {
		slog.Error("failed to save submission", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save submission",
		})
		return
	}
	record.ID = id

	// The alert set is the AML audit trail; a submission without it would
	// be invisible to compliance, so roll back the insert if it fails.
	if len(alerts) > 0 {
		set := &domain.AmlAlertSet{
			SubmissionID: record.ID,
			Alerts:       alerts,
			CreatedAt:    record.CreatedAt,
		}
		if _, err := h.store.SaveAlertSet(ctx, set); err != nil {
			slog.Error("failed to save alert set, rolling back submission",
				"submission_id", record.ID,
				"error", err,
			)
			if delErr := h.store.DeleteSubmission(ctx, domain.StorePending, record.ID); delErr != nil {
				slog.Error("rollback delete failed", "submission_id", record.ID, "error", delErr)
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save AML alerts",
			})
			return
		}
	}

	h.publishDecision(record, len(alerts))

	resp := UploadResponse{Record: record}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// collectFiles gathers one file per named slot plus every file attached
// under the generic slot.
func collectFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	var files []*multipart.FileHeader
	for _, slot := range documentSlots {
		headers := form.File[slot]
		if slot == "file" {
			files = append(files, headers...)
			continue
		}
		if len(headers) > 0 {
			files = append(files, headers[0])
		}
	}
	return files
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// publishDecision emits the submission events. Publishing is best-effort;
// the record is already persisted and the response must not fail on a slow
// bus.
func (h *Handler) publishDecision(record *domain.SubmissionRecord, alertCount int) {
	if h.bus == nil {
		return
	}

	// Detached context: the request may be cancelled while the bus is
	// still delivering.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	decision := worker.DecisionMessage{
		SubmissionID:      record.ID,
		UserName:          record.UserName,
		OverallFraudScore: record.OverallFraudScore,
		OverallRiskLevel:  record.OverallRiskLevel,
		FinalStatus:       record.FinalStatus,
		AlertCount:        alertCount,
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		slog.Error("failed to marshal decision event", "error", err)
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicSubmissionReceived, payload); err != nil {
		slog.Error("failed to publish submission event", "submission_id", record.ID, "error", err)
	}
	if err := h.bus.Publish(ctx, domain.TopicSubmissionDecision, payload); err != nil {
		slog.Error("failed to publish decision event", "submission_id", record.ID, "error", err)
	}
}

// ListRecords handles GET /records?store=pending|approved|rejected.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	store, ok := parseStoreName(r.URL.Query().Get("store"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "store must be one of: pending, approved, rejected",
		})
		return
	}

	records, err := h.store.ListSubmissions(r.Context(), store)
	if err != nil {
		slog.Error("failed to list submissions", "store", store, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list submissions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"store":   store,
		"records": records,
		"count":   len(records),
	})
}

// GetRecord handles GET /records/{id}. The store query parameter narrows
// the lookup; without it all three stores are searched.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	stores := []domain.StoreName{domain.StorePending, domain.StoreApproved, domain.StoreRejected}
	if raw := r.URL.Query().Get("store"); raw != "" {
		store, ok := parseStoreName(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "store must be one of: pending, approved, rejected",
			})
			return
		}
		stores = []domain.StoreName{store}
	}

	for _, store := range stores {
		record, err := h.store.GetSubmission(ctx, store, id)
		if err == nil {
			writeJSON(w, http.StatusOK, record)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get submission", "id", id, "store", store, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to get submission",
			})
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "record not found",
	})
}

// DeleteRecord handles DELETE /records/{id}?store=.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	store, ok := parseStoreName(r.URL.Query().Get("store"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "store must be one of: pending, approved, rejected",
		})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.DeleteSubmission(r.Context(), store, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "record not found",
			})
			return
		}
		slog.Error("failed to delete submission", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete submission",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "record deleted",
	})
}

// ReviewRequest is the request body for POST /records/{id}/review.
type ReviewRequest struct {
	Status string `json:"status"` // "approved" or "rejected"
}

// ReviewRecord handles the admin decision on a pending submission. The
// record moves atomically out of pending; a second review of the same id
// finds nothing there and fails with 404.
func (h *Handler) ReviewRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	var target domain.StoreName
	switch strings.ToLower(req.Status) {
	case "approved":
		target = domain.StoreApproved
	case "rejected":
		target = domain.StoreRejected
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status must be 'approved' or 'rejected'",
		})
		return
	}

	record, err := h.store.MoveSubmission(ctx, id, domain.StorePending, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "record not found",
			})
			return
		}
		slog.Error("failed to move submission", "id", id, "target", target, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to review submission",
		})
		return
	}

	slog.Info("submission reviewed", "id", id, "status", req.Status)
	writeJSON(w, http.StatusOK, record)
}

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.ListAlertSets(r.Context())
	if err != nil {
		slog.Error("failed to list alert sets", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": sets,
		"count":  len(sets),
	})
}

// ListBlacklist handles GET /blacklist.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListBlacklist(r.Context())
	if err != nil {
		slog.Error("failed to list blacklist", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list blacklist",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// BlacklistRequest is the request body for POST /blacklist.
type BlacklistRequest struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// CreateBlacklistEntry handles POST /blacklist.
func (h *Handler) CreateBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	var req BlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	req.Number = strings.TrimSpace(req.Number)
	if req.Number == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "number is required",
		})
		return
	}

	entry := &domain.BlacklistEntry{
		Type:      req.Type,
		Number:    req.Number,
		CreatedAt: time.Now().UTC(),
	}

	id, err := h.store.InsertBlacklistEntry(r.Context(), entry)
	if err != nil {
		slog.Error("failed to insert blacklist entry", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to insert blacklist entry",
		})
		return
	}
	entry.ID = id

	slog.Info("blacklist entry created", "id", id, "number", entry.Number)
	writeJSON(w, http.StatusCreated, entry)
}

// DeleteBlacklistEntry handles DELETE /blacklist/{id}. A cached positive
// hit for the number is invalidated so the removal takes effect without
// waiting out the cache TTL.
func (h *Handler) DeleteBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var number string
	if entries, err := h.store.ListBlacklist(ctx); err == nil {
		for _, e := range entries {
			if e.ID == id {
				number = e.Number
				break
			}
		}
	}

	if err := h.store.DeleteBlacklistEntry(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "blacklist entry not found",
			})
			return
		}
		slog.Error("failed to delete blacklist entry", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete blacklist entry",
		})
		return
	}

	if number != "" && h.cache != nil {
		if err := h.cache.Delete(ctx, scoring.BlacklistCacheKey(number)); err != nil {
			slog.Warn("failed to invalidate blacklist cache", "number", number, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "blacklist entry deleted",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Reason      string  `json:"reason,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule validates and persists a new risk rule.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	now := time.Now().UTC()
	rule := &domain.RiskRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Weight:      req.Weight,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Validate CEL expression before persisting
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.store.SaveRiskRule(ctx, rule); err != nil {
		slog.Error("failed to save risk rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.store.ListRiskRules(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Stats returns rolling decision statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stats not available",
		})
		return
	}

	snapshot, err := worker.Snapshot(r.Context(), h.cache)
	if err != nil {
		slog.Error("failed to read decision stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": snapshot,
		"version":   h.version,
	})
}

// parseStoreName validates a store query parameter. Empty defaults to the
// pending store.
func parseStoreName(raw string) (domain.StoreName, bool) {
	switch strings.ToLower(raw) {
	case "", "pending":
		return domain.StorePending, true
	case "approved":
		return domain.StoreApproved, true
	case "rejected":
		return domain.StoreRejected, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
