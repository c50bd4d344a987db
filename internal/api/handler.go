package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waflite/waflite/internal/logging"
	"github.com/waflite/waflite/internal/normalize"
	"github.com/waflite/waflite/internal/observability"
	"github.com/waflite/waflite/internal/policy"
	"github.com/waflite/waflite/internal/rules"
	"github.com/waflite/waflite/internal/ruleset"
)

const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	store       *ruleset.Store
	decisionLog *logging.DecisionLogger
	metrics     *observability.Metrics
	version     string

	started time.Time
	scans   atomic.Int64
	blocks  atomic.Int64
}

func NewHandler(store *ruleset.Store, version string) *Handler {
	return &Handler{
		store:   store,
		version: version,
		started: time.Now(),
	}
}

// ScanResponse is the verdict for one request.
type ScanResponse struct {
	Score     int      `json:"scr"`
	Decision  string   `json:"dec"`
	Threshold int      `json:"thr"`
	Matched   []string `json:"m"`
}

type BatchResponse struct {
	Items []ScanResponse `json:"items"`
	N     int            `json:"n"`
}

type StatsResponse struct {
	UptimeSeconds float64 `json:"up_s"`
	Scans         int64   `json:"scans"`
	Blocks        int64   `json:"blocks"`
}

// SettingsRequest changes the threshold or the ignore list. Absent fields
// are left as they are.
type SettingsRequest struct {
	Threshold        *int      `json:"thr"`
	IgnoreUserAgents *[]string `json:"ign_ua"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": h.version})
}

// GetRules handles GET /api/v1/rules.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Document()
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ReplaceRules handles PUT /api/v1/rules.
func (h *Handler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := ruleset.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := h.store.Replace(doc); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	RequestLogger(r.Context()).Info("rule store replaced")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// PutRule handles PUT /api/v1/rules/{rid}: the rule replaces every rule
// with the same id. rtp and w are required; the id comes from the path.
func (h *Handler) PutRule(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	id := chi.URLParam(r, "rid")
	obj["rid"] = id

	if err := h.store.UpsertDocument(obj); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	RequestLogger(r.Context()).WithField("rule_id", rules.SanitizeID(id)).Info("rule stored")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "rid": rules.SanitizeID(id)})
}

// DeleteRule handles DELETE /api/v1/rules/{rid}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rid")
	removed, err := h.store.Delete(id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("rule %q not found", id))
		return
	}
	RequestLogger(r.Context()).WithField("rule_id", id).Info("rule deleted")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// UpdateSettings handles PATCH /api/v1/settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Threshold != nil {
		if err := h.store.SetThreshold(*req.Threshold); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
	}
	if req.IgnoreUserAgents != nil {
		if err := h.store.SetIgnoreUserAgents(*req.IgnoreUserAgents); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Scan handles POST /api/v1/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fields, err := decodeScanFields(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	set, err := h.store.Load()
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	resp, err := h.scan(r, set, fields)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Batch handles POST /api/v1/batch. Every item is validated before any is
// scanned, and all items are scored against the same rule set.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Items == nil {
		writeError(w, http.StatusBadRequest, "items must be a list")
		return
	}

	items := make([]map[string]any, 0, len(req.Items))
	for i, raw := range req.Items {
		fields, err := decodeScanFields(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("items[%d]: %v", i, err))
			return
		}
		items = append(items, fields)
	}

	set, err := h.store.Load()
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	out := BatchResponse{Items: make([]ScanResponse, 0, len(items))}
	for _, fields := range items {
		resp, err := h.scan(r, set, fields)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		out.Items = append(out.Items, resp)
	}
	out.N = len(out.Items)
	writeJSON(w, http.StatusOK, out)
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		UptimeSeconds: time.Since(h.started).Seconds(),
		Scans:         h.scans.Load(),
		Blocks:        h.blocks.Load(),
	})
}

func (h *Handler) scan(r *http.Request, set *ruleset.RuleSet, fields map[string]any) (ScanResponse, error) {
	start := time.Now()
	rec := normalize.Fields(fields)

	verdict, err := policy.EvaluateRecord(set, rec)
	if err != nil {
		return ScanResponse{}, err
	}

	h.scans.Add(1)
	if verdict.Blocked() {
		h.blocks.Add(1)
	}

	decision := logging.Decision{
		Timestamp:    start.UTC(),
		RequestID:    RequestID(r.Context()),
		Source:       observability.SourceAPI,
		ClientIP:     rec.IP,
		Request:      rec.Req,
		UserAgent:    rec.UA,
		Score:        verdict.Score,
		Threshold:    verdict.Threshold,
		Action:       string(verdict.Decision),
		MatchedRules: matchedRules(verdict.Matches),
	}
	elapsed := time.Since(start)
	decision.DurationMS = elapsed.Milliseconds()
	if err := h.decisionLog.Write(decision); err != nil {
		RequestLogger(r.Context()).WithError(err).Warn("decision log write failed")
	}
	h.metrics.Observe(decision, elapsed)

	return ScanResponse{
		Score:     verdict.Score,
		Decision:  string(verdict.Decision),
		Threshold: verdict.Threshold,
		Matched:   verdict.Matched,
	}, nil
}

// writeStoreError maps rule set problems to 400 and anything else to 500.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *rules.ConfigError
	if errors.As(err, &cfgErr) {
		h.metrics.ConfigError(observability.SourceAPI)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	RequestLogger(r.Context()).WithError(err).Error("rule store failure")
	writeError(w, http.StatusInternalServerError, "rule store failure")
}

// decodeScanFields accepts {ip, req, ua, st}. req must be a non-empty
// string; other values are coerced like any normalized record.
func decodeScanFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, errors.New("body must be a JSON object")
	}
	req, ok := fields[normalize.FieldRequest].(string)
	if !ok || req == "" {
		return nil, errors.New("req is required")
	}
	return fields, nil
}

func matchedRules(matches []rules.Match) []logging.MatchedRule {
	out := make([]logging.MatchedRule, len(matches))
	for i, m := range matches {
		out[i] = logging.MatchedRule{ID: m.RuleID, Field: m.Field, Weight: m.Weight, Evidence: m.Evidence}
	}
	return out
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func decodeStrict(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
