package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reel/internal/deps"
	"reel/internal/history"
	"reel/internal/job"
	"reel/internal/jobqueue"
	"reel/internal/logging"
	"reel/internal/progress"
	"reel/internal/reelerr"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxRequestBytes  = 1 << 20
	renderIDHeader   = "X-Render-Id"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type enqueueResponse struct {
	ID     string         `json:"id"`
	Status history.Status `json:"status"`
}

type listResponse struct {
	Renders []*history.Record `json:"renders"`
}

type healthResponse struct {
	Status        string `json:"status"`
	ActiveRenders int    `json:"active_renders"`
	MaxConcurrent int    `json:"max_concurrent"`
	QueueEnabled  bool   `json:"queue_enabled"`
	QueueDepth    *int64 `json:"queue_depth,omitempty"`
}

type depsResponse struct {
	Binaries []deps.Status        `json:"binaries"`
	Encoders []deps.EncoderStatus `json:"encoders,omitempty"`
	Missing  []string             `json:"missing,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		ActiveRenders: len(s.slots),
		MaxConcurrent: cap(s.slots),
		QueueEnabled:  s.queue != nil,
	}
	if s.queue != nil {
		depth, err := s.queue.Len(r.Context())
		if err != nil {
			resp.Status = "degraded"
			logging.WarnWithContext(s.logger, "queue depth unavailable", "queue_unreachable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "queued renders cannot be accepted"),
				logging.String(logging.FieldErrorHint, "check redis_addr and that Redis is running"),
			)
		} else {
			resp.QueueDepth = &depth
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
	statuses := deps.CheckBinaries(deps.Requirements(s.cfg))
	resp := depsResponse{Binaries: statuses, Missing: deps.MissingRequired(statuses)}
	if truthy(r.URL.Query().Get("encoders")) {
		encoders, err := deps.CheckEncoders(r.Context(), s.cfg.Encoder.FFmpegBinary)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		resp.Encoders = encoders
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleRender validates the job, waits for a render slot and streams the
// render's progress. Validation errors are answered with a plain JSON error;
// once streaming starts every outcome arrives as an NDJSON event.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	j, ok := s.decodeJob(w, r)
	if !ok {
		return
	}
	id := uuid.NewString()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(renderIDHeader, id)
	w.WriteHeader(http.StatusOK)
	stream := progress.NewWriter(w)
	sink := progress.WithRenderID(stream, id)

	release, err := s.acquire(r.Context(), sink)
	if err != nil {
		sink.Emit(progress.Error(err.Error()))
		return
	}
	defer release()

	result, err := s.renderer.Render(r.Context(), id, j, sink)
	log := logging.WithContext(logging.WithRenderID(r.Context(), id), s.logger)
	if err != nil {
		log.Info("streamed render failed",
			logging.String(logging.FieldEventType, "api_render_failed"),
			logging.String("error_kind", reelerr.Kind(err)),
			logging.Error(err),
		)
	} else {
		log.Info("streamed render complete",
			logging.String(logging.FieldEventType, "api_render_complete"),
			logging.String("output_path", result.OutputPath),
		)
	}
	if werr := stream.Err(); werr != nil {
		log.Debug("progress stream closed early", logging.Error(werr))
	}
}

// acquire takes a render slot, telling the client when it has to wait.
func (s *Server) acquire(ctx context.Context, sink progress.Sink) (func(), error) {
	release := func() { <-s.slots }
	select {
	case s.slots <- struct{}{}:
		return release, nil
	default:
	}
	sink.Emit(progress.Status(fmt.Sprintf("waiting for a render slot (%d in use)", cap(s.slots))))
	select {
	case s.slots <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, reelerr.Wrap(reelerr.ErrCanceled, "server", "acquire slot", "", ctx.Err())
	}
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "render queue is not configured"})
		return
	}
	j, ok := s.decodeJob(w, r)
	if !ok {
		return
	}
	id := uuid.NewString()
	ctx := r.Context()

	if s.history != nil {
		if _, err := s.history.Enqueue(ctx, id, j); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if err := s.queue.Push(ctx, jobqueue.Message{ID: id, Job: j, EnqueuedAt: time.Now().UTC()}); err != nil {
		if s.history != nil {
			if ferr := s.history.Finish(context.WithoutCancel(ctx), id, history.Outcome{Err: err}); ferr != nil {
				s.logger.Warn("failed to mark unqueued render", logging.Error(ferr))
			}
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.logger.Info("render queued",
		logging.String(logging.FieldEventType, "render_queued"),
		logging.String(logging.FieldRenderID, id),
		logging.String("composition_id", j.CompositionID),
	)
	s.writeJSON(w, http.StatusAccepted, enqueueResponse{ID: id, Status: history.StatusQueued})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, listResponse{Renders: []*history.Record{}})
		return
	}
	query := r.URL.Query()
	limit := defaultListLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxListLimit)
	}
	var statuses []history.Status
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := history.ParseStatus(part)
			if !ok {
				s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown status %q", part)})
				return
			}
			statuses = append(statuses, status)
		}
	}

	records, err := s.history.List(r.Context(), limit, statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []*history.Record{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{Renders: records})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "renderID"))
	if s.history == nil || id == "" {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "render not found"})
		return
	}
	record, err := s.history.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "render not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// decodeJob parses and validates the request body, answering 400 itself.
func (s *Server) decodeJob(w http.ResponseWriter, r *http.Request) (job.Job, bool) {
	var j job.Job
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := decoder.Decode(&j); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body: " + err.Error(), Kind: "validation"})
		return job.Job{}, false
	}
	prepared, err := s.renderer.Prepare(j)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return job.Job{}, false
	}
	return prepared, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: reelerr.Kind(err)})
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
