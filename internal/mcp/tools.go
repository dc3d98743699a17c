package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mhoffmann/kimai-mcp-server/internal/kimai"
)

// McpServer is the part of the MCP server the tool handlers need.
type McpServer interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// entityKinds are the values accepted by the generic entity tool.
var entityKinds = []string{
	"project", "activity", "customer", "user", "team",
	"tag", "invoice", "holiday", "timesheet", "absence",
}

// writeActions need the read-only gate.
var writeActions = map[string]bool{
	"create": true, "update": true, "delete": true,
	"approve": true, "reject": true,
	"start": true, "stop": true, "restart": true,
	"duplicate": true, "export_toggle": true, "meta_update": true,
	"add_member": true, "remove_member": true,
	"grant": true, "revoke": true,
	"unlock_month": true,
	"rate_add":     true, "rate_delete": true,
}

// ToolHandlers contains all MCP tool handlers
type ToolHandlers struct {
	router      *kimai.Router
	stats       *kimai.StatsGenerator
	defaultUser string
	readOnly    bool
}

// NewToolHandlers creates new tool handlers
func NewToolHandlers(client *kimai.Client, defaultUser string) *ToolHandlers {
	readOnly := os.Getenv("KIMAI_MCP_READ_ONLY") == "true"
	if readOnly {
		slog.Info("read-only mode enabled - all write operations will be blocked")
	}
	return &ToolHandlers{
		router:      kimai.NewRouter(kimai.NewRegistry(), client),
		stats:       kimai.NewStatsGenerator(client),
		defaultUser: defaultUser,
		readOnly:    readOnly,
	}
}

// checkReadOnly returns an error if the server is in read-only mode.
func (h *ToolHandlers) checkReadOnly(action string) error {
	if h.readOnly && writeActions[action] {
		return fmt.Errorf("server is in read-only mode - write operations are disabled")
	}
	return nil
}

// RegisterTools registers all MCP tools on the server
func (h *ToolHandlers) RegisterTools(s McpServer) {
	s.AddTool(mcp.NewTool("entity",
		mcp.WithDescription("Manage Kimai entities (projects, activities, customers, users, teams, tags, invoices, public holidays, timesheets, absences) with a single action-based interface"),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Entity type"),
			mcp.Enum(entityKinds...),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Action to perform, e.g. list, get, create, update, delete, or an entity-specific action like meta_update or unlock_month"),
		),
		mcp.WithNumber("id",
			mcp.Description("Entity ID (required for get, update, delete and other single-resource actions)"),
		),
		mcp.WithObject("filters",
			mcp.Description("Filters for list actions, using Kimai's own parameter names (e.g. {\"customer\": 5, \"visible\": true})"),
		),
		mcp.WithObject("data",
			mcp.Description("Payload for create/update actions (e.g. {\"name\": \"Website\", \"customer\": 5})"),
		),
	), h.handleEntity)

	s.AddTool(mcp.NewTool("timesheet",
		mcp.WithDescription("Work with timesheet entries: list, get, create, update, delete, duplicate, toggle export state, update meta fields, or fetch recent/active entries"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Timesheet action"),
			mcp.Enum("list", "get", "create", "update", "delete", "duplicate", "export_toggle", "meta_update", "recent", "active"),
		),
		mcp.WithNumber("id",
			mcp.Description("Timesheet ID (required for single-entry actions)"),
		),
		mcp.WithObject("filters",
			mcp.Description("Filters for list/recent (user, customer, project, activity, begin, end, billable, exported, page, size, ...)"),
		),
		mcp.WithObject("data",
			mcp.Description("Payload for create/update (begin, end, project, activity, description, tags, ...) or meta_update (name, value)"),
		),
	), h.handleTimesheet)

	s.AddTool(mcp.NewTool("timer",
		mcp.WithDescription("Control the running timer: start a new entry, stop or restart an entry, show currently running entries, or list recent entries to restart from"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Timer action"),
			mcp.Enum("start", "stop", "restart", "active", "recent"),
		),
		mcp.WithNumber("id",
			mcp.Description("Timesheet ID (required for stop and restart)"),
		),
		mcp.WithNumber("project",
			mcp.Description("Project ID (required for start)"),
		),
		mcp.WithNumber("activity",
			mcp.Description("Activity ID (required for start)"),
		),
		mcp.WithString("description",
			mcp.Description("Description for the new entry"),
		),
		mcp.WithBoolean("copy_all",
			mcp.Description("On restart, copy description, tags and rates from the original entry"),
		),
		mcp.WithObject("data",
			mcp.Description("Additional fields for the new entry (tags, billable, ...)"),
		),
	), h.handleTimer)

	s.AddTool(mcp.NewTool("absence",
		mcp.WithDescription("Manage absences: list, create (long ranges are split into per-segment requests), delete, approve, reject, or list the available absence types"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Absence action"),
			mcp.Enum("list", "create", "delete", "approve", "reject", "types"),
		),
		mcp.WithNumber("id",
			mcp.Description("Absence ID (required for delete, approve, reject)"),
		),
		mcp.WithObject("filters",
			mcp.Description("Filters for list (user, begin, end, status) or types (language)"),
		),
		mcp.WithObject("data",
			mcp.Description("Payload for create: type, date, optional end, comment, optional user and half_day"),
		),
	), h.handleAbsence)

	s.AddTool(mcp.NewTool("calendar",
		mcp.WithDescription("Fetch calendar data: absences or public holidays in a date range"),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Calendar source"),
			mcp.Enum("absences", "holidays"),
		),
		mcp.WithString("begin",
			mcp.Description("Range start (YYYY-MM-DD)"),
		),
		mcp.WithString("end",
			mcp.Description("Range end (YYYY-MM-DD)"),
		),
		mcp.WithString("user",
			mcp.Description("User ID for absences (defaults to the configured default user)"),
		),
		mcp.WithString("group",
			mcp.Description("Holiday group name"),
		),
	), h.handleCalendar)

	s.AddTool(mcp.NewTool("meta",
		mcp.WithDescription("Set a custom meta field on a customer, project, activity or timesheet"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("Entity carrying the meta field"),
			mcp.Enum("customer", "project", "activity", "timesheet"),
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Entity ID"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Meta field name"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Meta field value"),
		),
	), h.handleMeta)

	s.AddTool(mcp.NewTool("team_access",
		mcp.WithDescription("Manage team membership and team access to customers, projects and activities"),
		mcp.WithNumber("team",
			mcp.Required(),
			mcp.Description("Team ID"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Access action"),
			mcp.Enum("add_member", "remove_member", "grant", "revoke"),
		),
		mcp.WithNumber("user",
			mcp.Description("User ID (required for add_member and remove_member)"),
		),
		mcp.WithString("target",
			mcp.Description("Access target kind for grant/revoke"),
			mcp.Enum("customer", "project", "activity"),
		),
		mcp.WithNumber("target_id",
			mcp.Description("Target entity ID for grant/revoke"),
		),
	), h.handleTeamAccess)

	s.AddTool(mcp.NewTool("rate",
		mcp.WithDescription("Manage rates on a customer, project or activity: list, add (requires a rate, hourlyRate or fixedRate), or delete"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("Entity carrying the rate"),
			mcp.Enum("customer", "project", "activity"),
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Entity ID"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Rate action"),
			mcp.Enum("list", "add", "delete"),
		),
		mcp.WithNumber("rate_id",
			mcp.Description("Rate ID (required for delete)"),
		),
		mcp.WithObject("data",
			mcp.Description("Rate payload for add: user, rate, hourlyRate, fixedRate, internalRate, isFixed"),
		),
	), h.handleRate)

	s.AddTool(mcp.NewTool("analytics",
		mcp.WithDescription("Aggregate timesheet statistics: totals, billable split, per-project/activity breakdowns, daily/weekly/monthly trends, overtime, optionally as an XLSX workbook"),
		mcp.WithString("user",
			mcp.Description("User ID, or 'all' (defaults to the configured default user)"),
		),
		mcp.WithString("begin",
			mcp.Description("Range start (ISO-8601)"),
		),
		mcp.WithString("end",
			mcp.Description("Range end (ISO-8601)"),
		),
		mcp.WithNumber("project",
			mcp.Description("Limit to one project"),
		),
		mcp.WithNumber("activity",
			mcp.Description("Limit to one activity"),
		),
		mcp.WithNumber("customer",
			mcp.Description("Limit to one customer"),
		),
		mcp.WithString("billable",
			mcp.Description("Billable filter"),
			mcp.Enum("0", "1"),
		),
		mcp.WithString("format",
			mcp.Description("Output format (default json)"),
			mcp.Enum("json", "xlsx"),
		),
	), h.handleAnalytics)

	s.AddTool(mcp.NewTool("user_current",
		mcp.WithDescription("Get the user owning the configured API token"),
	), h.handleUserCurrent)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (h *ToolHandlers) handleEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.checkReadOnly(action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := h.router.Handle(ctx, kimai.Invocation{
		Kind:    kind,
		Action:  action,
		ID:      int(req.GetFloat("id", 0)),
		Filters: getMapArg(req, "filters"),
		Data:    getMapArg(req, "data"),
	})
	return jsonResult(out)
}

func (h *ToolHandlers) handleTimesheet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.checkReadOnly(action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filters := getMapArg(req, "filters")
	if action == "list" || action == "recent" {
		filters = h.scopeUser(filters)
	}
	data := getMapArg(req, "data")
	if action == "create" {
		data = h.scopeUser(data)
	}

	out := h.router.Handle(ctx, kimai.Invocation{
		Kind:    "timesheet",
		Action:  action,
		ID:      int(req.GetFloat("id", 0)),
		Filters: filters,
		Data:    data,
	})
	return jsonResult(out)
}

func (h *ToolHandlers) handleTimer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.checkReadOnly(action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch action {
	case "start":
		data := getMapArg(req, "data")
		if data == nil {
			data = map[string]any{}
		}
		if project := req.GetFloat("project", 0); project > 0 {
			data["project"] = project
		}
		if activity := req.GetFloat("activity", 0); activity > 0 {
			data["activity"] = activity
		}
		if description := req.GetString("description", ""); description != "" {
			data["description"] = description
		}
		return jsonResult(h.router.StartTimer(ctx, h.scopeUser(data)))
	case "stop":
		return jsonResult(h.router.StopTimer(ctx, int(req.GetFloat("id", 0))))
	case "restart":
		return jsonResult(h.router.RestartTimer(ctx, int(req.GetFloat("id", 0)), req.GetBool("copy_all", false)))
	case "active":
		return jsonResult(h.router.ActiveTimers(ctx))
	case "recent":
		out := h.router.Handle(ctx, kimai.Invocation{
			Kind:    "timesheet",
			Action:  "recent",
			Filters: h.scopeUser(nil),
		})
		return jsonResult(out)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown timer action %q", action)), nil
	}
}

func (h *ToolHandlers) handleAbsence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.checkReadOnly(action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filters := getMapArg(req, "filters")
	if action == "list" {
		filters = h.scopeUser(filters)
	}

	out := h.router.Handle(ctx, kimai.Invocation{
		Kind:    "absence",
		Action:  action,
		ID:      int(req.GetFloat("id", 0)),
		Filters: filters,
		Data:    getMapArg(req, "data"),
	})
	return jsonResult(out)
}

func (h *ToolHandlers) handleCalendar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filters := map[string]any{}
	if begin := req.GetString("begin", ""); begin != "" {
		filters["begin"] = begin
	}
	if end := req.GetString("end", ""); end != "" {
		filters["end"] = end
	}

	var inv kimai.Invocation
	switch source {
	case "absences":
		if user := req.GetString("user", ""); user != "" {
			filters["user"] = user
		}
		inv = kimai.Invocation{Kind: "absence", Action: "list", Filters: h.scopeUser(filters)}
	case "holidays":
		if group := req.GetString("group", ""); group != "" {
			filters["group"] = group
		}
		inv = kimai.Invocation{Kind: "holiday", Action: "list", Filters: filters}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown calendar type %q", source)), nil
	}

	return jsonResult(h.router.Handle(ctx, inv))
}

func (h *ToolHandlers) handleMeta(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entity, err := req.RequireString("entity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idFloat, err := req.RequireFloat("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.checkReadOnly("meta_update"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := h.router.Handle(ctx, kimai.Invocation{
		Kind:   entity,
		Action: "meta_update",
		ID:     int(idFloat),
		Data:   map[string]any{"name": name, "value": value},
	})
	return jsonResult(out)
}

func (h *ToolHandlers) handleTeamAccess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	teamFloat, err := req.RequireFloat("team")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.checkReadOnly(action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data := map[string]any{}
	switch action {
	case "add_member", "remove_member":
		if user := req.GetFloat("user", 0); user > 0 {
			data["user"] = user
		}
	case "grant", "revoke":
		if target := req.GetString("target", ""); target != "" {
			data["target"] = target
		}
		if targetID := req.GetFloat("target_id", 0); targetID > 0 {
			data["target_id"] = targetID
		}
	}

	out := h.router.Handle(ctx, kimai.Invocation{
		Kind:   "team",
		Action: action,
		ID:     int(teamFloat),
		Data:   data,
	})
	return jsonResult(out)
}

func (h *ToolHandlers) handleRate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entity, err := req.RequireString("entity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idFloat, err := req.RequireFloat("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var rateAction string
	switch action {
	case "list":
		rateAction = kimai.ActionRateList
	case "add":
		rateAction = kimai.ActionRateAdd
	case "delete":
		rateAction = kimai.ActionRateDelete
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown rate action %q", action)), nil
	}
	if err := h.checkReadOnly(rateAction); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data := getMapArg(req, "data")
	if rateID := req.GetFloat("rate_id", 0); rateID > 0 {
		if data == nil {
			data = map[string]any{}
		}
		data["rate_id"] = rateID
	}

	out := h.router.Handle(ctx, kimai.Invocation{
		Kind:   entity,
		Action: rateAction,
		ID:     int(idFloat),
		Data:   data,
	})
	return jsonResult(out)
}

func (h *ToolHandlers) handleAnalytics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := kimai.TimesheetStatsParams{
		User:     req.GetString("user", h.defaultUser),
		Begin:    req.GetString("begin", ""),
		End:      req.GetString("end", ""),
		Project:  int(req.GetFloat("project", 0)),
		Activity: int(req.GetFloat("activity", 0)),
		Customer: int(req.GetFloat("customer", 0)),
		Billable: req.GetString("billable", ""),
		Format:   req.GetString("format", "json"),
	}
	if params.User == "all" {
		params.User = ""
	}

	result, err := h.stats.Generate(ctx, params)
	if err != nil {
		return jsonResult(kimai.NormalizeError(err))
	}
	return jsonResult(kimai.Success(result))
}

func (h *ToolHandlers) handleUserCurrent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := h.router.Client().CurrentUser(ctx)
	if err != nil {
		return jsonResult(kimai.NormalizeError(err))
	}
	return jsonResult(kimai.Success(user))
}

// scopeUser resolves the user scope of a filter or payload map: "all"
// removes the user constraint entirely, an explicit user passes through,
// and an absent user falls back to the configured default.
func (h *ToolHandlers) scopeUser(filters map[string]any) map[string]any {
	if u, ok := filters["user"].(string); ok && u == "all" {
		delete(filters, "user")
		return filters
	}
	if h.defaultUser == "" {
		return filters
	}
	if filters == nil {
		filters = map[string]any{}
	}
	if _, ok := filters["user"]; !ok {
		filters["user"] = h.defaultUser
	}
	return filters
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func jsonResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func getMapArg(req mcp.CallToolRequest, key string) map[string]any {
	args := req.GetArguments()
	if v, ok := args[key]; ok {
		// Try direct map type
		if m, ok := v.(map[string]any); ok {
			return m
		}
		// Try parsing from JSON string (MCP sometimes stringifies objects)
		if s, ok := v.(string); ok && strings.HasPrefix(s, "{") {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err == nil {
				return m
			}
		}
	}
	return nil
}
