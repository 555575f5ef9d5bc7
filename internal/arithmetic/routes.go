package arithmetic

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the stateless calculator endpoints: the JSON API
// under /calculator and the query-string power service at /arithmetic.
func RegisterRoutes(r chi.Router) {
	r.Route("/calculator", func(r chi.Router) {
		r.Post("/add", Add)
		r.Post("/subtract", Subtract)
		r.Post("/multiply", Multiply)
		r.Post("/divide", Divide)
		r.Post("/power", Power)
		r.Post("/chain", Chain)
		r.Post("/evaluate", Evaluate)
	})
	r.Get("/arithmetic", Arithmetic)
}
