package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"renderworker/internal/httpkit"
	"renderworker/internal/pkg/errors"
	"renderworker/internal/worker"
)

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) error {
	out := []worker.Status{}
	if h.slots != nil {
		for _, s := range h.slots.Slots() {
			out = append(out, s.Status())
		}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
	return nil
}

func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) error {
	s, err := h.slot(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, s.Status())
	return nil
}

func (h *Handler) GetSlotJournal(w http.ResponseWriter, r *http.Request) error {
	s, err := h.slot(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"slot":  s.Index(),
		"items": s.Journal(),
	})
	return nil
}

func (h *Handler) slot(r *http.Request) (*worker.Slot, error) {
	raw := chi.URLParam(r, "slot")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.Validationf("invalid slot %q", raw).WithField("field", "slot")
	}
	if h.slots == nil {
		return nil, errors.NotFound("slot", raw)
	}
	return h.slots.Slot(i)
}
