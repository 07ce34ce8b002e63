package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chunkstream/chunkstream/internal/core"
	"github.com/chunkstream/chunkstream/internal/logging"
)

// handleHealth reports liveness and database reachability.
//
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTables returns the table registry.
//
// GET /api/tables
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registry().Tables())
}

// handleCount returns the number of rows in a table within a time range.
//
// GET /api/count?table=&start=&end=&where=
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	table, start, end := q.Get("table"), q.Get("start"), q.Get("end")
	if table == "" || start == "" || end == "" {
		s.respondBadRequest(w, r, "table, start and end query parameters are required")
		return
	}

	count, err := s.engine.Count(r.Context(), core.CountRequest{
		Table:     table,
		StartTime: start,
		EndTime:   end,
		Where:     q.Get("where"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"table": table,
		"start": start,
		"end":   end,
		"count": count,
	})
}

// handleStream streams chunk envelopes as NDJSON, one per line, flushed
// as they are produced. Errors occurring after the first chunk cannot
// change the status code anymore; they are appended as a final
// {"error": ...} line instead.
//
// GET /api/stream?table=&start=&end=&windows=&chunk_size=&interval=&where=&fields=
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, windowed, err := s.parseStreamRequest(r)
	if err != nil {
		s.respondBadRequest(w, r, err.Error())
		return
	}

	var stream *core.Stream
	if windowed {
		stream, err = s.engine.StreamByTimeWindows(r.Context(), req)
	} else {
		stream, err = s.engine.StreamByChunks(r.Context(), req)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for stream.Next(r.Context()) {
		chunk := stream.Chunk()
		if !s.cfg.Export.IncludeMetadata && chunk.Metadata != nil {
			stripped := *chunk
			stripped.Metadata = nil
			chunk = &stripped
		}
		if err := enc.Encode(chunk); err != nil {
			// Client went away; nothing left to write to.
			return
		}
		rc.Flush()
	}

	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		totals := stream.Totals()
		logging.FromContext(r.Context()).Error("stream failed",
			"table", req.Table,
			"chunks", totals.Chunks,
			"records", totals.Records,
			"error", err.Error(),
		)
		enc.Encode(ErrorResponse{Error: err.Error()})
		rc.Flush()
	}
}

// parseStreamRequest extracts and validates stream parameters. Windowed
// mode is the default; windows=false selects flat mode.
func (s *Server) parseStreamRequest(r *http.Request) (core.StreamRequest, bool, error) {
	q := r.URL.Query()
	req := core.StreamRequest{
		Table:     q.Get("table"),
		StartTime: q.Get("start"),
		EndTime:   q.Get("end"),
		Where:     q.Get("where"),
	}
	if req.Table == "" || req.StartTime == "" || req.EndTime == "" {
		return req, false, errors.New("table, start and end query parameters are required")
	}

	if fields := q.Get("fields"); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.Fields = append(req.Fields, f)
			}
		}
	}

	if raw := q.Get("chunk_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, false, errors.New("chunk_size must be an integer")
		}
		req.ChunkSize = n
	}

	if raw := q.Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return req, false, errors.New("interval must be a duration such as 30m or 1h")
		}
		req.WindowInterval = d
	}

	windowed := true
	if raw := q.Get("windows"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return req, false, errors.New("windows must be a boolean")
		}
		windowed = b
	}
	return req, windowed, nil
}
