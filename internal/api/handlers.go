// Package api provides a REST facade over the Kimai action router.
//
//	@title						Kimai MCP Server REST API
//	@version					1.0
//	@description				REST API exposing Kimai time-tracking operations through a uniform entity/action interface.
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Kimai API token, passed as "Bearer <token>"
//	@BasePath					/api/v1
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mhoffmann/kimai-mcp-server/internal/kimai"
)

type contextKey string

const routerContextKey contextKey = "kimaiRouter"

// getRouter retrieves the per-request Kimai router from the context.
func getRouter(r *http.Request) *kimai.Router {
	router, _ := r.Context().Value(routerContextKey).(*kimai.Router)
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeOutput maps a normalized tool output onto an HTTP response. The
// error kind decides the status code; the body is the output itself so
// REST and MCP clients see the same shape.
func writeOutput(w http.ResponseWriter, out kimai.Output) {
	if out.Success {
		writeJSON(w, http.StatusOK, out)
		return
	}

	status := http.StatusBadGateway
	if out.Error != nil {
		switch out.Error.Kind {
		case kimai.ErrorValidation, kimai.ErrorClient:
			status = http.StatusBadRequest
		case kimai.ErrorPermission:
			status = http.StatusForbidden
		case kimai.ErrorNotFound:
			status = http.StatusNotFound
		case kimai.ErrorConflict:
			status = http.StatusConflict
		case kimai.ErrorPartial:
			status = http.StatusMultiStatus
		}
	}
	writeJSON(w, status, out)
}

// urlID parses the {id} route parameter. Returns 0 when absent or malformed;
// the router's validation reports the violation.
func urlID(r *http.Request) int {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	return id
}

// queryFilters collects query parameters into a filter map. Values stay
// strings; the schema layer accepts string forms of every filter type.
func queryFilters(r *http.Request) map[string]any {
	filters := map[string]any{}
	for name, values := range r.URL.Query() {
		if len(values) == 1 {
			filters[name] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		filters[name] = list
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

// decodeBody parses a JSON request body into a data map.
func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// handleHealth returns server health status
//
//	@Summary		Health check
//	@Description	Returns server health status
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "kimai-mcp-server",
	})
}

// handleMe returns the authenticated Kimai user
//
//	@Summary		Current user
//	@Description	Returns the Kimai user the supplied token belongs to
//	@Tags			users
//	@Produce		json
//	@Success		200	{object}	kimai.User
//	@Failure		401	{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/me [get]
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := getRouter(r).Client().CurrentUser(r.Context())
	if err != nil {
		writeOutput(w, kimai.NormalizeError(err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleVersion returns the upstream Kimai version
//
//	@Summary		Kimai version
//	@Description	Returns version information of the connected Kimai instance
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	kimai.Version
//	@Security		BearerAuth
//	@Router			/version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version, err := getRouter(r).Client().GetVersion(r.Context())
	if err != nil {
		writeOutput(w, kimai.NormalizeError(err))
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// handleEntityList lists entities of a kind
//
//	@Summary		List entities
//	@Description	Lists entities of the given kind. Query parameters are passed through as filters.
//	@Tags			entities
//	@Produce		json
//	@Param			type	path		string	true	"Entity kind (project, activity, customer, user, team, tag, invoice, holiday, timesheet, absence)"
//	@Success		200		{object}	kimai.Output
//	@Failure		400		{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/entities/{type} [get]
func (s *Server) handleEntityList(w http.ResponseWriter, r *http.Request) {
	out := getRouter(r).Handle(r.Context(), kimai.Invocation{
		Kind:    chi.URLParam(r, "type"),
		Action:  "list",
		Filters: queryFilters(r),
	})
	writeOutput(w, out)
}

// handleEntityCreate creates an entity
//
//	@Summary		Create entity
//	@Description	Creates an entity of the given kind from the JSON body
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			type	path		string			true	"Entity kind"
//	@Param			body	body		map[string]any	true	"Entity fields"
//	@Success		200		{object}	kimai.Output
//	@Failure		400		{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/entities/{type} [post]
func (s *Server) handleEntityCreate(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	out := getRouter(r).Handle(r.Context(), kimai.Invocation{
		Kind:   chi.URLParam(r, "type"),
		Action: "create",
		Data:   data,
	})
	writeOutput(w, out)
}

// handleEntityGet fetches one entity
//
//	@Summary		Get entity
//	@Tags			entities
//	@Produce		json
//	@Param			type	path		string	true	"Entity kind"
//	@Param			id		path		int		true	"Entity ID"
//	@Success		200		{object}	kimai.Output
//	@Failure		404		{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/entities/{type}/{id} [get]
func (s *Server) handleEntityGet(w http.ResponseWriter, r *http.Request) {
	out := getRouter(r).Handle(r.Context(), kimai.Invocation{
		Kind:   chi.URLParam(r, "type"),
		Action: "get",
		ID:     urlID(r),
	})
	writeOutput(w, out)
}

// handleEntityUpdate updates one entity
//
//	@Summary		Update entity
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			type	path		string			true	"Entity kind"
//	@Param			id		path		int				true	"Entity ID"
//	@Param			body	body		map[string]any	true	"Fields to update"
//	@Success		200		{object}	kimai.Output
//	@Failure		400		{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/entities/{type}/{id} [patch]
func (s *Server) handleEntityUpdate(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	out := getRouter(r).Handle(r.Context(), kimai.Invocation{
		Kind:   chi.URLParam(r, "type"),
		Action: "update",
		ID:     urlID(r),
		Data:   data,
	})
	writeOutput(w, out)
}

// handleEntityDelete deletes one entity
//
//	@Summary		Delete entity
//	@Tags			entities
//	@Produce		json
//	@Param			type	path		string	true	"Entity kind"
//	@Param			id		path		int		true	"Entity ID"
//	@Success		200		{object}	kimai.Output
//	@Failure		404		{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/entities/{type}/{id} [delete]
func (s *Server) handleEntityDelete(w http.ResponseWriter, r *http.Request) {
	out := getRouter(r).Handle(r.Context(), kimai.Invocation{
		Kind:   chi.URLParam(r, "type"),
		Action: "delete",
		ID:     urlID(r),
	})
	writeOutput(w, out)
}

// handleEntityAction runs a specialized action on one entity
//
//	@Summary		Run entity action
//	@Description	Runs a specialized action (approve, reject, stop, restart, duplicate, export_toggle, meta_update, add_member, remove_member, grant, revoke, unlock_month, rate_list, rate_add, rate_delete) on one entity. The JSON body is passed as the action payload.
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			type	path		string			true	"Entity kind"
//	@Param			id		path		int				true	"Entity ID"
//	@Param			action	path		string			true	"Action name"
//	@Param			body	body		map[string]any	false	"Action payload"
//	@Success		200		{object}	kimai.Output
//	@Failure		400		{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/entities/{type}/{id}/actions/{action} [post]
func (s *Server) handleEntityAction(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	out := getRouter(r).Handle(r.Context(), kimai.Invocation{
		Kind:   chi.URLParam(r, "type"),
		Action: chi.URLParam(r, "action"),
		ID:     urlID(r),
		Data:   data,
	})
	writeOutput(w, out)
}

// handleTimerActive lists the caller's running timers
//
//	@Summary		Active timers
//	@Tags			timer
//	@Produce		json
//	@Success		200	{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/timer [get]
func (s *Server) handleTimerActive(w http.ResponseWriter, r *http.Request) {
	writeOutput(w, getRouter(r).ActiveTimers(r.Context()))
}

// handleTimerStart starts a new timer
//
//	@Summary		Start timer
//	@Description	Starts a running timesheet now. Fails with a conflict if a timer is already running.
//	@Tags			timer
//	@Accept			json
//	@Produce		json
//	@Param			body	body		map[string]any	true	"Timesheet fields (project and activity required)"
//	@Success		200		{object}	kimai.Output
//	@Failure		409		{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/timer/start [post]
func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	writeOutput(w, getRouter(r).StartTimer(r.Context(), data))
}

// handleTimerStop stops a running timer
//
//	@Summary		Stop timer
//	@Tags			timer
//	@Produce		json
//	@Param			id	path		int	true	"Timesheet ID"
//	@Success		200	{object}	kimai.Output
//	@Failure		404	{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/timer/{id}/stop [post]
func (s *Server) handleTimerStop(w http.ResponseWriter, r *http.Request) {
	writeOutput(w, getRouter(r).StopTimer(r.Context(), urlID(r)))
}

// handleTimerRestart restarts a stopped timesheet
//
//	@Summary		Restart timer
//	@Tags			timer
//	@Produce		json
//	@Param			id			path		int		true	"Timesheet ID"
//	@Param			copy_all	query		bool	false	"Copy description, tags and rates from the original"
//	@Success		200			{object}	kimai.Output
//	@Security		BearerAuth
//	@Router			/timer/{id}/restart [post]
func (s *Server) handleTimerRestart(w http.ResponseWriter, r *http.Request) {
	copyAll := r.URL.Query().Get("copy_all") == "true" || r.URL.Query().Get("copy_all") == "1"
	writeOutput(w, getRouter(r).RestartTimer(r.Context(), urlID(r), copyAll))
}

// handleAnalytics generates timesheet statistics
//
//	@Summary		Timesheet statistics
//	@Description	Aggregates matching timesheet entries into totals, per-project and per-activity breakdowns, and trends. Set format=xlsx for a base64 workbook.
//	@Tags			analytics
//	@Produce		json
//	@Param			user		query		string	false	"User ID, or 'all'"
//	@Param			begin		query		string	false	"Period start (ISO date or datetime)"
//	@Param			end			query		string	false	"Period end"
//	@Param			project		query		int		false	"Project ID filter"
//	@Param			activity	query		int		false	"Activity ID filter"
//	@Param			customer	query		int		false	"Customer ID filter"
//	@Param			billable	query		string	false	"Billable filter, 0 or 1"
//	@Param			format		query		string	false	"Output format, json or xlsx"
//	@Success		200			{object}	kimai.TimesheetStatsResult
//	@Security		BearerAuth
//	@Router			/analytics/timesheets [get]
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := kimai.TimesheetStatsParams{
		User:     q.Get("user"),
		Begin:    q.Get("begin"),
		End:      q.Get("end"),
		Billable: q.Get("billable"),
		Format:   q.Get("format"),
	}
	params.Project, _ = strconv.Atoi(q.Get("project"))
	params.Activity, _ = strconv.Atoi(q.Get("activity"))
	params.Customer, _ = strconv.Atoi(q.Get("customer"))
	if params.User == "all" {
		params.User = ""
	}

	stats := kimai.NewStatsGenerator(getRouter(r).Client())
	result, err := stats.Generate(r.Context(), params)
	if err != nil {
		writeOutput(w, kimai.NormalizeError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
