package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/carlosvictorodrigues/ratio/internal/config"
	"github.com/carlosvictorodrigues/ratio/internal/gemini"
	"github.com/carlosvictorodrigues/ratio/internal/pipeline"
	"github.com/carlosvictorodrigues/ratio/internal/retriever"
)

const streamHeartbeatInterval = 500 * time.Millisecond

type queryHandler struct {
	pipeline *pipeline.Pipeline
	tuning   config.Tuning
	logger   *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// streamLine is one NDJSON line on the streaming endpoint.
type streamLine struct {
	Event  string               `json:"event"`
	Stage  *pipeline.StageEvent `json:"stage,omitempty"`
	Result *pipeline.Result     `json:"result,omitempty"`
	Error  *errorResponse       `json:"error,omitempty"`
}

func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.pipeline.Query(r.Context(), req, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryStream runs the pipeline while emitting NDJSON progress lines:
// started, stage events, heartbeats while a stage is quiet, then a
// final result or error line.
func (h *queryHandler) queryStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	writeLine := func(line streamLine) {
		if err := enc.Encode(line); err != nil {
			return
		}
		flusher.Flush()
	}

	writeLine(streamLine{Event: "started"})

	events := make(chan pipeline.StageEvent, 32)
	type outcome struct {
		result *pipeline.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.pipeline.Query(r.Context(), req, events)
		done <- outcome{result: result, err: err}
	}()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev := <-events:
			writeLine(streamLine{Event: "stage", Stage: &ev})
		case <-heartbeat.C:
			writeLine(streamLine{Event: "heartbeat"})
		case out := <-done:
			// Drain events queued before completion.
			for {
				select {
				case ev := <-events:
					writeLine(streamLine{Event: "stage", Stage: &ev})
					continue
				default:
				}
				break
			}
			if out.err != nil {
				h.logger.Error("streamed query failed", "error", out.err)
				resp := errorBody(out.err)
				writeLine(streamLine{Event: "error", Error: &resp})
			} else {
				writeLine(streamLine{Event: "result", Result: out.result})
			}
			return
		case <-r.Context().Done():
			return
		}
	}
}

// ragConfig exposes the effective tuning so clients can display and
// override individual knobs.
func (h *queryHandler) ragConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": h.tuning,
		"bounds":   config.Bounds(),
	})
}

func (h *queryHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return req, false
	}
	return req, true
}

func (h *queryHandler) writeError(w http.ResponseWriter, err error) {
	h.logger.Error("query failed", "error", err)
	writeJSON(w, statusFor(err), errorBody(err))
}

func errorBody(err error) errorResponse {
	resp := errorResponse{Error: err.Error()}
	var apiErr *gemini.Error
	if errors.As(err, &apiErr) {
		resp.Kind = string(apiErr.Kind)
	}
	return resp
}

func statusFor(err error) int {
	if errors.Is(err, retriever.ErrAllSourcesFailed) {
		return http.StatusBadGateway
	}
	switch gemini.KindOf(err) {
	case gemini.KindMissingKey, gemini.KindInvalidKey:
		return http.StatusUnauthorized
	case gemini.KindRateLimited, gemini.KindQuotaExhausted:
		return http.StatusTooManyRequests
	case gemini.KindModelUnavailable, gemini.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
