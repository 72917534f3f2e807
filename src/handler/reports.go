package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/model"
	"exceptiontracker/src/query"
)

// Queries is the read side consumed by the HTTP layer.
type Queries interface {
	List(ctx context.Context, actor model.Principal, f query.ListFilter) (*query.Page, error)
	GetStats(ctx context.Context, actor model.Principal, verticalID *uint) (*query.Stats, error)
	GetVerticalSummary(ctx context.Context, actor model.Principal, verticalID uint) (*query.VerticalSummary, error)
	GetUserWorkload(ctx context.Context, actor model.Principal, userID uint, status *model.ExceptionStatus) (*query.Workload, error)
	GetEscalationReport(ctx context.Context, actor model.Principal, f query.EscalationFilter) (*query.EscalationReport, error)
}

// ListExceptionsHandler lists exceptions with filters, pagination and sort.
// Query params: status, severity, vertical_id, assigned_to, created_by,
// priority, category, from, to, search, overdue_only, sla_breach_only,
// page, limit, sort_by, sort_order.
func ListExceptionsHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		f, err := parseListFilter(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		page, err := q.List(r.Context(), p, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: page.Items, Pagination: &page.Pagination})
	}
}

func parseListFilter(r *http.Request) (query.ListFilter, error) {
	values := r.URL.Query()
	f := query.ListFilter{
		Status:   statusQuery(r),
		Severity: severityQuery(r),
		Search:   values.Get("search"),
		SortBy:   values.Get("sort_by"),
	}
	if c := values.Get("category"); c != "" {
		f.Category = &c
	}
	switch strings.ToLower(values.Get("sort_order")) {
	case "", "desc":
		f.SortDesc = true
	case "asc":
	default:
		return f, apperr.Validation("invalid sort_order").With("sort_order", values.Get("sort_order"))
	}

	var err error
	if f.VerticalID, err = uintQuery(r, "vertical_id"); err != nil {
		return f, err
	}
	if f.AssignedTo, err = uintQuery(r, "assigned_to"); err != nil {
		return f, err
	}
	if f.CreatedBy, err = uintQuery(r, "created_by"); err != nil {
		return f, err
	}
	if f.Priority, err = boolQuery(r, "priority"); err != nil {
		return f, err
	}
	if f.CreatedFrom, err = timeQuery(r, "from", false); err != nil {
		return f, err
	}
	if f.CreatedTo, err = timeQuery(r, "to", true); err != nil {
		return f, err
	}
	if f.Page, err = intQuery(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = intQuery(r, "limit"); err != nil {
		return f, err
	}
	overdue, err := boolQuery(r, "overdue_only")
	if err != nil {
		return f, err
	}
	f.OverdueOnly = overdue != nil && *overdue
	breach, err := boolQuery(r, "sla_breach_only")
	if err != nil {
		return f, err
	}
	f.SLABreachOnly = breach != nil && *breach
	return f, nil
}

func StatsHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		vertical, err := uintQuery(r, "vertical_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		stats, err := q.GetStats(r.Context(), p, vertical)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, stats)
	}
}

func VerticalSummaryHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		vertical, err := idParam(r, "verticalID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		summary, err := q.GetVerticalSummary(r.Context(), p, vertical)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, summary)
	}
}

func WorkloadHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		userID, err := idParam(r, "userID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		workload, err := q.GetUserWorkload(r.Context(), p, userID, statusQuery(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, workload)
	}
}

func EscalationReportHandler(q Queries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		f := query.EscalationFilter{Severity: severityQuery(r)}
		var err error
		if f.VerticalID, err = uintQuery(r, "vertical_id"); err == nil {
			if f.From, err = timeQuery(r, "from", false); err == nil {
				f.To, err = timeQuery(r, "to", true)
			}
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		report, err := q.GetEscalationReport(r.Context(), p, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, report)
	}
}

func ListSLARulesHandler(svc Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := principal(w, r); !ok {
			return
		}
		rules, err := svc.ListSLARules(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, rules)
	}
}

type slaRuleRequest struct {
	ResolutionTimeHours int   `json:"resolution_time_hours"`
	Active              *bool `json:"active,omitempty"`
}

// UpsertSLARuleHandler sets the rule of the severity in the path. Active
// defaults to true.
func UpsertSLARuleHandler(svc Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		var body slaRuleRequest
		if err := decode(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		active := body.Active == nil || *body.Active
		severity := model.Severity(chi.URLParam(r, "severity"))
		rule, err := svc.UpsertSLARule(r.Context(), p, severity, body.ResolutionTimeHours, active)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, rule)
	}
}
