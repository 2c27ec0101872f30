// Package httpapi exposes the worker status API.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"renderworker/internal/httpapi/handlers"
	"renderworker/internal/pkg/middleware"
)

type Deps = handlers.Deps

func NewRouter(d Deps) http.Handler {
	h := handlers.New(d)
	log := h.Log()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- SLOTS ----
	r.Get("/slots", wrap(h.ListSlots))
	r.Get("/slots/{slot}", wrap(h.GetSlot))
	r.Get("/slots/{slot}/journal", wrap(h.GetSlotJournal))
	r.Get("/slots/{slot}/results", wrap(h.ListSlotResults))

	// ---- RESULTS ----
	r.Get("/results/{jobKey}/{file}", wrap(h.GetResultFile))

	return r
}
