package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"renderworker/internal/httpkit"
	"renderworker/internal/models"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/worker/archive"
)

// ListSlotResults returns the newest archived results of the worker running
// in a slot.
func (h *Handler) ListSlotResults(w http.ResponseWriter, r *http.Request) error {
	s, err := h.slot(r)
	if err != nil {
		return err
	}
	if h.results == nil {
		return errors.Unavailable("result ledger")
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return errors.Validationf("invalid limit %q", v).WithField("field", "limit")
		}
	}

	name := s.Status().Worker
	items, err := h.results.ListByWorker(r.Context(), name, limit)
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.JobResult{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"worker": name,
		"items":  items,
	})
	return nil
}

// GetResultFile streams an archived frame.
func (h *Handler) GetResultFile(w http.ResponseWriter, r *http.Request) error {
	jobKey := chi.URLParam(r, "jobKey")
	file := chi.URLParam(r, "file")

	if file != archive.ImageFile && file != archive.Image2File {
		return errors.NotFound("result file", file)
	}
	if jobKey != archive.SanitizeName(jobKey) {
		return errors.Validationf("invalid job key %q", jobKey).WithField("field", "jobKey")
	}
	if h.sp == nil {
		return errors.Unavailable("result archive")
	}

	rc, contentType, size, err := h.sp.GetObject(r.Context(), archive.ObjectKey(jobKey, file))
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "image/png"
	}
	return httpkit.WriteStream(w, rc, contentType, size)
}
