package session

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the session API under /sessions and the theme
// preference under /preferences.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Delete)
			r.Post("/keys", h.Keys)
			r.Get("/history", h.History)
			r.Delete("/history", h.ClearHistory)
			r.Post("/history/{index}/restore", h.Restore)
			r.Post("/angle", h.ToggleAngle)
			r.Put("/keypad", h.SetKeypad)
		})
	})
	r.Route("/preferences", func(r chi.Router) {
		r.Get("/theme", h.GetTheme)
		r.Put("/theme", h.PutTheme)
	})
}
