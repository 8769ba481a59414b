package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/roach88/sheetrelay/internal/engine"
)

type ingestRequest struct {
	RouteID string          `json:"routeId"`
	Records json.RawMessage `json:"records"`
	Meta    map[string]any  `json:"meta,omitempty"`
}

type ingestResponse struct {
	OK       bool   `json:"ok"`
	RouteID  string `json:"routeId"`
	Ingested int    `json:"ingested"`
	Failed   int    `json:"failed"`
	SheetID  string `json:"sheetId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStateHashes(w http.ResponseWriter, _ *http.Request) {
	hashes, err := s.engine.Hashes()
	if err != nil {
		s.logger.Error("state hashes failed", "error", err)
		s.fail(w, ReasonInternalError)
		return
	}
	writeJSON(w, http.StatusOK, hashes)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(headerKey)
	if key == "" {
		s.fail(w, ReasonMissingCredential)
		return
	}
	if len(s.keys) > 0 && !s.keys[key] {
		s.fail(w, ReasonInvalidCredential)
		return
	}
	if !s.limiter(key).Allow() {
		s.fail(w, ReasonRateLimited)
		return
	}

	if r.ContentLength > s.cfg.MaxBodyBytes {
		s.fail(w, ReasonPayloadTooLarge)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		s.fail(w, ReasonInvalidPayload)
		return
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		s.fail(w, ReasonPayloadTooLarge)
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil || req.RouteID == "" {
		s.fail(w, ReasonInvalidPayload)
		return
	}
	records, ok := decodeRecords(req.Records)
	if !ok || len(records) == 0 || len(records) > s.cfg.MaxRecords {
		s.fail(w, ReasonInvalidPayload)
		return
	}

	rt, ok := s.engine.Registry().Route(req.RouteID)
	if !ok {
		s.fail(w, ReasonUnknownRoute)
		return
	}

	proof := r.Header.Get(headerProof) == "1"
	if proof {
		for _, rec := range records {
			if !hasField(rec, rt.Provenance.TimestampField) {
				s.fail(w, ReasonInvalidPayload)
				return
			}
		}
	}

	res, err := s.engine.Ingest(r.Context(), req.RouteID, records, engine.IngestOptions{
		Batch:            len(records) > 1,
		Strict:           s.cfg.StrictRequired,
		RequireTimestamp: proof,
	})
	if err != nil {
		if errors.Is(err, engine.ErrUnknownRoute) {
			s.fail(w, ReasonUnknownRoute)
			return
		}
		s.logger.Error("ingest failed", "route", req.RouteID, "error", err)
		s.fail(w, ReasonInternalError)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		OK:       true,
		RouteID:  res.RouteID,
		Ingested: res.Ingested,
		Failed:   res.Failed,
		SheetID:  res.SheetID,
	})
}

// decodeRecords accepts one object or an array of objects.
func decodeRecords(raw json.RawMessage) ([]map[string]any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}
	switch raw[0] {
	case '{':
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, false
		}
		return []map[string]any{rec}, true
	case '[':
		var recs []map[string]any
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, false
		}
		for _, rec := range recs {
			if rec == nil {
				return nil, false
			}
		}
		return recs, true
	default:
		return nil, false
	}
}

// hasField reports whether rec carries a non-empty value for field. A
// dotted field falls back to nested objects.
func hasField(rec map[string]any, field string) bool {
	if field == "" {
		return false
	}
	if v, ok := rec[field]; ok {
		return v != nil && v != ""
	}
	head, rest, ok := strings.Cut(field, ".")
	if !ok {
		return false
	}
	nested, ok := rec[head].(map[string]any)
	if !ok {
		return false
	}
	return hasField(nested, rest)
}

func (s *Server) fail(w http.ResponseWriter, reason Reason) {
	writeJSON(w, reason.Status(), errorBody{OK: false, Error: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
