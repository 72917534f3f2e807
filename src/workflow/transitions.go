package workflow

import (
	"exceptiontracker/src/apperr"
	"exceptiontracker/src/model"
)

// Event is a workflow operation that may move an exception between states.
type Event string

const (
	EventSetStatus Event = "set_status"
	EventAssign    Event = "assign"
	EventReassign  Event = "reassign"
	EventResolve   Event = "resolve"
	EventClose     Event = "close"
	EventEscalate  Event = "escalate"
	EventEdit      Event = "edit"
)

var allStatuses = []model.ExceptionStatus{
	model.StatusOpen, model.StatusInProgress, model.StatusResolved, model.StatusClosed,
}

// statusGraph is the set of transitions allowed through a generic status update.
var statusGraph = map[model.ExceptionStatus]map[model.ExceptionStatus]bool{
	model.StatusOpen:       {model.StatusInProgress: true, model.StatusResolved: true, model.StatusClosed: true},
	model.StatusInProgress: {model.StatusResolved: true, model.StatusClosed: true, model.StatusOpen: true},
	model.StatusResolved:   {model.StatusClosed: true, model.StatusOpen: true},
	model.StatusClosed:     {model.StatusOpen: true},
}

// eventTable maps State x Event to the resulting state for every event
// other than EventSetStatus. A missing entry means the event is rejected
// in that state.
var eventTable = func() map[model.ExceptionStatus]map[Event]model.ExceptionStatus {
	t := make(map[model.ExceptionStatus]map[Event]model.ExceptionStatus, len(allStatuses))
	for _, s := range allStatuses {
		t[s] = map[Event]model.ExceptionStatus{
			EventAssign:   model.StatusInProgress,
			EventReassign: s,
			EventEscalate: s,
			EventEdit:     s,
		}
	}
	t[model.StatusOpen][EventResolve] = model.StatusResolved
	t[model.StatusInProgress][EventResolve] = model.StatusResolved
	t[model.StatusResolved][EventClose] = model.StatusClosed
	return t
}()

// CanTransition reports whether a generic status update from -> to is allowed.
func CanTransition(from, to model.ExceptionStatus) bool {
	return statusGraph[from][to]
}

// AllowedTargets returns the statuses a generic update may move from to.
func AllowedTargets(from model.ExceptionStatus) []model.ExceptionStatus {
	targets := make([]model.ExceptionStatus, 0, 3)
	for _, s := range allStatuses {
		if statusGraph[from][s] {
			targets = append(targets, s)
		}
	}
	return targets
}

// Next returns the status an exception in state from reaches when ev is
// applied. requested is only consulted for EventSetStatus.
func Next(from model.ExceptionStatus, ev Event, requested model.ExceptionStatus) (model.ExceptionStatus, error) {
	if ev == EventSetStatus {
		if !requested.Valid() {
			return from, apperr.Validation("invalid status").
				With("requested", requested)
		}
		if !CanTransition(from, requested) {
			return from, apperr.Validation("status transition not allowed").
				With("current", from).
				With("requested", requested)
		}
		return requested, nil
	}

	to, ok := eventTable[from][ev]
	if !ok {
		return from, rejection(from, ev)
	}
	return to, nil
}

func rejection(from model.ExceptionStatus, ev Event) *apperr.Error {
	switch ev {
	case EventResolve:
		return apperr.Validation("exception cannot be resolved from its current status").
			With("current", from)
	case EventClose:
		return apperr.Validation("only resolved exceptions can be closed").
			With("current", from)
	default:
		return apperr.Validation("event not allowed").
			With("current", from).
			With("event", ev)
	}
}
