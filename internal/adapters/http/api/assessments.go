package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/bandscore/internal/app"
	"github.com/okian/bandscore/internal/domain/types"
	"github.com/okian/bandscore/pkg/logger"
)

const (
	multipartMemory   = 8 << 20
	idempotencyHeader = "Idempotency-Key"
)

// AssessmentsHandler serves /v1/assessments.
type AssessmentsHandler struct {
	deps Dependencies
	opts serverOptions
}

// NewAssessmentsHandler creates the assessments handler.
func NewAssessmentsHandler(deps Dependencies, opts serverOptions) *AssessmentsHandler {
	return &AssessmentsHandler{deps: deps, opts: opts}
}

// HandleSubmit handles POST /v1/assessments (multipart/form-data).
//
// Fields: audio (file, required), prompt, detail, wait. The Idempotency-Key
// header overrides the content-derived key.
func (h *AssessmentsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_assessment"

	if r.ContentLength > h.opts.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			WrapKind(op, ErrTooLarge, fmt.Errorf("limit is %d bytes", h.opts.maxUploadBytes)))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.badBody(w, op, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	detail, err := types.ParseDetail(r.FormValue("detail"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_detail", WrapKind(op, ErrBadRequest, err))
		return
	}
	wait, err := parseBool(r.FormValue("wait"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("wait: %w", err)))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_audio", WrapKind(op, ErrBadRequest, err))
		return
	}
	defer func() { _ = file.Close() }()
	audio, err := io.ReadAll(file)
	if err != nil {
		h.badBody(w, op, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	res, err := h.deps.Submit(r.Context(), service.Submission{
		Audio:    audio,
		Filename: header.Filename,
		Prompt:   strings.TrimSpace(r.FormValue("prompt")),
		Key:      key,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrEmptyAudio):
		writeError(w, http.StatusBadRequest, "empty_audio", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
		return
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	default:
		h.opts.log.Error(r.Context(), "submit failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	a := res.Assessment
	if wait && !a.Status.Terminal() {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.syncTimeout)
		defer cancel()
		latest, werr := h.deps.Wait(ctx, a.ID)
		switch {
		case werr == nil:
			a = latest
		case errors.Is(werr, context.DeadlineExceeded), errors.Is(werr, context.Canceled):
			if latest.ID != "" {
				a = latest
			}
		default:
			h.opts.log.Warn(r.Context(), "wait failed", logger.String("assessment_id", a.ID), logger.Error(werr))
		}
	}

	if wait && a.Status.Terminal() {
		writeJSON(w, http.StatusOK, types.View(a, detail))
		return
	}
	writeJSON(w, http.StatusAccepted, types.SubmitResponse{ID: a.ID, Status: a.Status, Duplicate: res.Duplicate})
}

func (h *AssessmentsHandler) badBody(w http.ResponseWriter, op string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			WrapKind(op, ErrTooLarge, fmt.Errorf("limit is %d bytes", tooLarge.Limit)))
		return
	}
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}

// HandleGet handles GET /v1/assessments/{id}?detail=.
func (h *AssessmentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_assessment"

	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	detail, err := types.ParseDetail(r.URL.Query().Get("detail"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_detail", WrapKind(op, ErrBadRequest, err))
		return
	}

	a, err := h.deps.Get(r.Context(), id)
	if err != nil {
		h.readError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, types.View(a, detail))
}

// HandleList handles GET /v1/assessments?limit=N.
func (h *AssessmentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_assessments"

	n := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("invalid limit %q", raw)))
			return
		}
		n = v
	}
	if n > h.opts.maxListLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			WrapKind(op, ErrBadRequest, fmt.Errorf("limit must not exceed %d", h.opts.maxListLimit)))
		return
	}

	items, total, err := h.deps.List(r.Context(), n)
	if err != nil {
		h.readError(w, r, op, err)
		return
	}
	views := make([]types.AssessmentView, len(items))
	for i, a := range items {
		views[i] = types.View(a, types.DetailDefault)
	}
	writeJSON(w, http.StatusOK, types.ListResponse{Assessments: views, Count: len(views), Total: total})
}

func (h *AssessmentsHandler) readError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		h.opts.log.Error(r.Context(), "read failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

func parseBool(s string) (bool, error) {
	if s = strings.TrimSpace(s); s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

