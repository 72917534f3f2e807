package handler

import (
	"context"
	"net/http"
	"time"

	"exceptiontracker/src/model"
	"exceptiontracker/src/policy"
	"exceptiontracker/src/query"
	"exceptiontracker/src/workflow"
)

// Workflow is the mutating side consumed by the HTTP layer.
type Workflow interface {
	Create(ctx context.Context, actor model.Principal, in model.CreateExceptionInput) (*model.Exception, error)
	Get(ctx context.Context, actor model.Principal, id uint) (*model.Exception, error)
	Update(ctx context.Context, actor model.Principal, id uint, patch model.ExceptionPatch) (*model.Exception, error)
	UpdateStatus(ctx context.Context, actor model.Principal, id uint, status model.ExceptionStatus) (*model.Exception, error)
	Assign(ctx context.Context, actor model.Principal, id uint, assignedTo uint) (*model.Exception, error)
	Reassign(ctx context.Context, actor model.Principal, id uint, assignedTo uint) (*model.Exception, error)
	Resolve(ctx context.Context, actor model.Principal, id uint, notes string) (*model.Exception, error)
	Close(ctx context.Context, actor model.Principal, id uint) (*model.Exception, error)
	Escalate(ctx context.Context, actor model.Principal, id uint, in workflow.EscalateInput) (*model.Exception, error)
	Delete(ctx context.Context, actor model.Principal, id uint) (*model.Exception, error)
	AddComment(ctx context.Context, actor model.Principal, id uint, text string, internal bool) (*model.ExceptionComment, error)
	ListComments(ctx context.Context, actor model.Principal, id uint) ([]model.ExceptionComment, error)
	History(ctx context.Context, actor model.Principal, id uint) ([]model.ExceptionHistory, error)
	Escalations(ctx context.Context, actor model.Principal, id uint) ([]model.ExceptionEscalation, error)
	ListSLARules(ctx context.Context) ([]model.SLARule, error)
	UpsertSLARule(ctx context.Context, actor model.Principal, severity model.Severity, hours int, active bool) (*model.SLARule, error)
	Now() time.Time
}

type exceptionDetail struct {
	query.ExceptionView
	AllowedActions []policy.Action `json:"allowed_actions"`
}

// detail derives the read-only fields against the workflow clock.
func detail(svc Workflow, p model.Principal, exc *model.Exception) exceptionDetail {
	return exceptionDetail{
		ExceptionView:  query.View(*exc, svc.Now()),
		AllowedActions: policy.Allowed(p, exc),
	}
}

// CreateExceptionHandler opens a new exception.
func CreateExceptionHandler(svc Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		var in model.CreateExceptionInput
		if err := decode(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		exc, err := svc.Create(r.Context(), p, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, detail(svc, p, exc))
	}
}

func GetExceptionHandler(svc Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		exc, err := svc.Get(r.Context(), p, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, detail(svc, p, exc))
	}
}

// mutate wraps the id-scoped operations that take a JSON body and return the
// updated exception.
func mutate[T any](svc Workflow, op func(ctx context.Context, p model.Principal, id uint, body T) (*model.Exception, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var body T
		if r.ContentLength != 0 {
			if err := decode(r, &body); err != nil {
				writeError(w, r, err)
				return
			}
		}
		exc, err := op(r.Context(), p, id, body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, detail(svc, p, exc))
	}
}

func UpdateExceptionHandler(svc Workflow) http.HandlerFunc {
	return mutate(svc, func(ctx context.Context, p model.Principal, id uint, patch model.ExceptionPatch) (*model.Exception, error) {
		return svc.Update(ctx, p, id, patch)
	})
}

type statusRequest struct {
	Status model.ExceptionStatus `json:"status"`
}

func UpdateStatusHandler(svc Workflow) http.HandlerFunc {
	return mutate(svc, func(ctx context.Context, p model.Principal, id uint, body statusRequest) (*model.Exception, error) {
		return svc.UpdateStatus(ctx, p, id, body.Status)
	})
}

type assignRequest struct {
	AssignedTo uint `json:"assigned_to"`
}

func AssignHandler(svc Workflow) http.HandlerFunc {
	return mutate(svc, func(ctx context.Context, p model.Principal, id uint, body assignRequest) (*model.Exception, error) {
		return svc.Assign(ctx, p, id, body.AssignedTo)
	})
}

func ReassignHandler(svc Workflow) http.HandlerFunc {
	return mutate(svc, func(ctx context.Context, p model.Principal, id uint, body assignRequest) (*model.Exception, error) {
		return svc.Reassign(ctx, p, id, body.AssignedTo)
	})
}

type resolveRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

func ResolveHandler(svc Workflow) http.HandlerFunc {
	return mutate(svc, func(ctx context.Context, p model.Principal, id uint, body resolveRequest) (*model.Exception, error) {
		return svc.Resolve(ctx, p, id, body.ResolutionNotes)
	})
}

func CloseHandler(svc Workflow) http.HandlerFunc {
	return mutate(svc, func(ctx context.Context, p model.Principal, id uint, _ struct{}) (*model.Exception, error) {
		return svc.Close(ctx, p, id)
	})
}

func EscalateHandler(svc Workflow) http.HandlerFunc {
	return mutate(svc, func(ctx context.Context, p model.Principal, id uint, body workflow.EscalateInput) (*model.Exception, error) {
		return svc.Escalate(ctx, p, id, body)
	})
}

// DeleteExceptionHandler hard deletes an exception and returns the removed row.
func DeleteExceptionHandler(svc Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		exc, err := svc.Delete(r.Context(), p, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, exc)
	}
}

type commentRequest struct {
	Comment    string `json:"comment"`
	IsInternal bool   `json:"is_internal"`
}

func AddCommentHandler(svc Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var body commentRequest
		if err := decode(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		comment, err := svc.AddComment(r.Context(), p, id, body.Comment, body.IsInternal)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeData(w, http.StatusCreated, comment)
	}
}

// listByID serves the read-only sub-collections of an exception.
func listByID[T any](op func(ctx context.Context, p model.Principal, id uint) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		items, err := op(r.Context(), p, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeData(w, http.StatusOK, items)
	}
}

func ListCommentsHandler(svc Workflow) http.HandlerFunc {
	return listByID(func(ctx context.Context, p model.Principal, id uint) ([]model.ExceptionComment, error) {
		return svc.ListComments(ctx, p, id)
	})
}

func HistoryHandler(svc Workflow) http.HandlerFunc {
	return listByID(func(ctx context.Context, p model.Principal, id uint) ([]model.ExceptionHistory, error) {
		return svc.History(ctx, p, id)
	})
}

func EscalationsHandler(svc Workflow) http.HandlerFunc {
	return listByID(func(ctx context.Context, p model.Principal, id uint) ([]model.ExceptionEscalation, error) {
		return svc.Escalations(ctx, p, id)
	})
}
