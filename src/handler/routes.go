package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the exception API. Callers must install the principal
// middleware in front of it.
func Routes(svc Workflow, q Queries) http.Handler {
	r := chi.NewRouter()

	r.Route("/exceptions", func(r chi.Router) {
		r.Get("/", ListExceptionsHandler(q))
		r.Post("/", CreateExceptionHandler(svc))
		r.Get("/stats", StatsHandler(q))
		r.Get("/workload/{userID}", WorkloadHandler(q))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", GetExceptionHandler(svc))
			r.Patch("/", UpdateExceptionHandler(svc))
			r.Delete("/", DeleteExceptionHandler(svc))
			r.Put("/status", UpdateStatusHandler(svc))
			r.Post("/assign", AssignHandler(svc))
			r.Post("/reassign", ReassignHandler(svc))
			r.Post("/resolve", ResolveHandler(svc))
			r.Post("/close", CloseHandler(svc))
			r.Post("/escalate", EscalateHandler(svc))
			r.Get("/comments", ListCommentsHandler(svc))
			r.Post("/comments", AddCommentHandler(svc))
			r.Get("/history", HistoryHandler(svc))
			r.Get("/escalations", EscalationsHandler(svc))
		})
	})

	r.Get("/verticals/{verticalID}/summary", VerticalSummaryHandler(q))
	r.Get("/reports/escalations", EscalationReportHandler(q))

	r.Get("/sla-rules", ListSLARulesHandler(svc))
	r.Put("/sla-rules/{severity}", UpsertSLARuleHandler(svc))

	return r
}
