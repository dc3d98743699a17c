package kimai

import (
	"context"
	"fmt"
	"time"
)

// timerClock is swapped out in tests for deterministic begin timestamps.
var timerClock = time.Now

// StartTimer begins a new running timesheet entry. It refuses to start
// when the caller already has an open entry, so a misfired tool call
// cannot stack timers.
func (r *Router) StartTimer(ctx context.Context, data map[string]any) Output {
	var violations []Violation
	if _, ok := data["project"]; !ok {
		violations = append(violations, Violation{Field: "project", Message: "'project' is required to start a timer"})
	}
	if _, ok := data["activity"]; !ok {
		violations = append(violations, Violation{Field: "activity", Message: "'activity' is required to start a timer"})
	}
	if len(violations) > 0 {
		return ValidationFailure(violations)
	}

	active, err := r.client.ActiveTimesheets(ctx)
	if err != nil {
		return NormalizeError(err)
	}
	if len(active) > 0 {
		return Output{Error: &OutputError{
			Kind:    ErrorConflict,
			Message: fmt.Sprintf("a timer is already running (timesheet %d, started %s); stop it first", active[0].ID, active[0].Begin),
			Details: active,
		}}
	}

	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["begin"] = timerClock().Format("2006-01-02T15:04:05")
	delete(body, "end") // an open entry is what makes it a timer

	desc, _ := r.registry.Describe("timesheet")
	result, err := r.client.Send(ctx, &Request{Method: "POST", Path: desc.CollectionPath, Body: body})
	if err != nil {
		return NormalizeError(err)
	}
	return Normalize(desc, result, nil)
}

// StopTimer stops the given running entry.
func (r *Router) StopTimer(ctx context.Context, id int) Output {
	return r.timerAction(ctx, "stop", id, nil)
}

// RestartTimer restarts a stopped entry as a new running one. With
// copyAll, description, tags and rates are carried over.
func (r *Router) RestartTimer(ctx context.Context, id int, copyAll bool) Output {
	data := map[string]any{}
	if copyAll {
		data["copy_all"] = true
	}
	return r.timerAction(ctx, "restart", id, data)
}

// ActiveTimers lists the caller's currently running entries.
func (r *Router) ActiveTimers(ctx context.Context) Output {
	desc, _ := r.registry.Describe("timesheet")
	result, err := r.client.Send(ctx, &Request{Method: "GET", Path: desc.CollectionPath + "/active", IsList: true})
	if err != nil {
		return NormalizeError(err)
	}
	return Normalize(desc, result, nil)
}

func (r *Router) timerAction(ctx context.Context, action string, id int, data map[string]any) Output {
	if id <= 0 {
		return ValidationFailure([]Violation{{Field: "id", Message: fmt.Sprintf("'id' is required for the %s action", action)}})
	}
	desc, _ := r.registry.Describe("timesheet")
	req, err := BuildRequest(desc, action, id, nil, data)
	if err != nil {
		return ValidationFailure([]Violation{{Field: "action", Message: err.Error()}})
	}
	result, err := r.client.Send(ctx, req)
	if err != nil {
		return NormalizeError(err)
	}
	return Normalize(desc, result, nil)
}
