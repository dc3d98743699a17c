package kimai

import (
	"testing"
)

func mustDescribe(t *testing.T, kind string) *Descriptor {
	t.Helper()
	desc, err := NewRegistry().Describe(kind)
	if err != nil {
		t.Fatalf("describe %s: %v", kind, err)
	}
	return desc
}

// ---------------------------------------------------------------------------
// Generic CRUD mapping
// ---------------------------------------------------------------------------

func TestBuildRequest_ListWithoutFilters(t *testing.T) {
	req, err := BuildRequest(mustDescribe(t, "project"), "list", 0, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "GET" || req.Path != "/api/projects" {
		t.Errorf("expected GET /api/projects, got %s %s", req.Method, req.Path)
	}
	if len(req.Query) != 0 {
		t.Errorf("expected no query parameters, got %v", req.Query)
	}
	if !req.IsList {
		t.Error("expected list request")
	}
}

func TestBuildRequest_BooleanFilterSerialization(t *testing.T) {
	filters := map[string]any{"visible": true, "globalActivities": false}
	req, err := BuildRequest(mustDescribe(t, "project"), "list", 0, filters, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := req.Query.Get("visible"); got != "1" {
		t.Errorf("expected visible=1, got %q", got)
	}
	if got := req.Query.Get("globalActivities"); got != "0" {
		t.Errorf("expected globalActivities=0, got %q", got)
	}
}

func TestBuildRequest_ListFilterRepeats(t *testing.T) {
	filters := map[string]any{"customers": []any{float64(1), float64(2)}}
	req, err := BuildRequest(mustDescribe(t, "invoice"), "list", 0, filters, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := req.Query["customers[]"]
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("expected customers[]=[1 2], got %v", got)
	}
}

func TestBuildRequest_GetDeleteUpdate(t *testing.T) {
	desc := mustDescribe(t, "customer")

	req, _ := BuildRequest(desc, "get", 12, nil, nil)
	if req.Method != "GET" || req.Path != "/api/customers/12" {
		t.Errorf("get: got %s %s", req.Method, req.Path)
	}

	req, _ = BuildRequest(desc, "delete", 12, nil, nil)
	if req.Method != "DELETE" || req.Path != "/api/customers/12" {
		t.Errorf("delete: got %s %s", req.Method, req.Path)
	}

	req, _ = BuildRequest(desc, "update", 12, nil, map[string]any{"name": "ACME"})
	if req.Method != "PATCH" || req.Path != "/api/customers/12" {
		t.Errorf("update: got %s %s", req.Method, req.Path)
	}
	if req.Body["name"] != "ACME" {
		t.Errorf("update body lost data: %v", req.Body)
	}
}

func TestBuildRequest_Create(t *testing.T) {
	data := map[string]any{"name": "Website", "customer": float64(5)}
	req, _ := BuildRequest(mustDescribe(t, "project"), "create", 0, nil, data)
	if req.Method != "POST" || req.Path != "/api/projects" {
		t.Errorf("got %s %s", req.Method, req.Path)
	}
	if req.Body["customer"] != float64(5) {
		t.Errorf("body not passed through: %v", req.Body)
	}
}

// ---------------------------------------------------------------------------
// Specialized sub-paths
// ---------------------------------------------------------------------------

func TestBuildRequest_TimesheetSubPaths(t *testing.T) {
	desc := mustDescribe(t, "timesheet")

	cases := []struct {
		action string
		method string
		path   string
	}{
		{"stop", "PATCH", "/api/timesheets/9/stop"},
		{"duplicate", "PATCH", "/api/timesheets/9/duplicate"},
		{"export_toggle", "PATCH", "/api/timesheets/9/export"},
		{"active", "GET", "/api/timesheets/active"},
		{"recent", "GET", "/api/timesheets/recent"},
	}
	for _, tc := range cases {
		req, err := BuildRequest(desc, tc.action, 9, nil, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.action, err)
		}
		if req.Method != tc.method || req.Path != tc.path {
			t.Errorf("%s: got %s %s, want %s %s", tc.action, req.Method, req.Path, tc.method, tc.path)
		}
	}
}

func TestBuildRequest_RestartCopiesFields(t *testing.T) {
	desc := mustDescribe(t, "timesheet")

	req, _ := BuildRequest(desc, "restart", 9, nil, map[string]any{"copy_all": true})
	if req.Path != "/api/timesheets/9/restart" {
		t.Errorf("got path %s", req.Path)
	}
	if req.Body["copy"] != "all" {
		t.Errorf("expected copy=all body, got %v", req.Body)
	}

	req, _ = BuildRequest(desc, "restart", 9, nil, nil)
	if req.Body != nil {
		t.Errorf("expected empty body without copy_all, got %v", req.Body)
	}
}

func TestBuildRequest_MetaUpdate(t *testing.T) {
	req, _ := BuildRequest(mustDescribe(t, "timesheet"), "meta_update", 9, nil,
		map[string]any{"name": "jira", "value": "TT-42"})
	if req.Method != "PATCH" || req.Path != "/api/timesheets/9/meta" {
		t.Errorf("got %s %s", req.Method, req.Path)
	}
	if req.Body["name"] != "jira" || req.Body["value"] != "TT-42" {
		t.Errorf("got body %v", req.Body)
	}
}

func TestBuildRequest_AbsenceStatusPaths(t *testing.T) {
	desc := mustDescribe(t, "absence")

	req, _ := BuildRequest(desc, "approve", 4, nil, nil)
	if req.Method != "PATCH" || req.Path != "/api/absences/4/confirm" {
		t.Errorf("approve: got %s %s", req.Method, req.Path)
	}

	req, _ = BuildRequest(desc, "reject", 4, nil, nil)
	if req.Path != "/api/absences/4/reject" {
		t.Errorf("reject: got %s", req.Path)
	}

	req, _ = BuildRequest(desc, "types", 0, map[string]any{"language": "de"}, nil)
	if req.Path != "/api/absences/types" || req.Query.Get("language") != "de" {
		t.Errorf("types: got %s %v", req.Path, req.Query)
	}
}

func TestBuildRequest_TeamMembership(t *testing.T) {
	desc := mustDescribe(t, "team")

	req, err := BuildRequest(desc, "add_member", 3, nil, map[string]any{"user": float64(11)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/teams/3/members/11" {
		t.Errorf("add_member: got %s %s", req.Method, req.Path)
	}

	req, _ = BuildRequest(desc, "remove_member", 3, nil, map[string]any{"user": float64(11)})
	if req.Method != "DELETE" || req.Path != "/api/teams/3/members/11" {
		t.Errorf("remove_member: got %s %s", req.Method, req.Path)
	}
}

func TestBuildRequest_TeamAccessGrantRevoke(t *testing.T) {
	desc := mustDescribe(t, "team")

	cases := []struct {
		action string
		target string
		method string
		path   string
	}{
		{"grant", "customer", "POST", "/api/teams/3/customers/7"},
		{"grant", "project", "POST", "/api/teams/3/projects/7"},
		{"grant", "activity", "POST", "/api/teams/3/activities/7"},
		{"revoke", "project", "DELETE", "/api/teams/3/projects/7"},
	}
	for _, tc := range cases {
		data := map[string]any{"target": tc.target, "target_id": float64(7)}
		req, err := BuildRequest(desc, tc.action, 3, nil, data)
		if err != nil {
			t.Fatalf("%s %s: unexpected error: %v", tc.action, tc.target, err)
		}
		if req.Method != tc.method || req.Path != tc.path {
			t.Errorf("%s %s: got %s %s, want %s %s", tc.action, tc.target, req.Method, req.Path, tc.method, tc.path)
		}
	}
}

func TestBuildRequest_Rates(t *testing.T) {
	desc := mustDescribe(t, "project")

	req, _ := BuildRequest(desc, ActionRateList, 5, nil, nil)
	if req.Method != "GET" || req.Path != "/api/projects/5/rates" || !req.IsList {
		t.Errorf("rate_list: got %s %s", req.Method, req.Path)
	}

	req, _ = BuildRequest(desc, ActionRateAdd, 5, nil, map[string]any{"hourlyRate": 95.0, "user": float64(2)})
	if req.Method != "POST" || req.Path != "/api/projects/5/rates" {
		t.Errorf("rate_add: got %s %s", req.Method, req.Path)
	}
	if req.Body["hourlyRate"] != 95.0 {
		t.Errorf("rate_add body: %v", req.Body)
	}

	req, err := BuildRequest(desc, ActionRateDelete, 5, nil, map[string]any{"rate_id": float64(8)})
	if err != nil {
		t.Fatalf("rate_delete: unexpected error: %v", err)
	}
	if req.Method != "DELETE" || req.Path != "/api/projects/5/rates/8" {
		t.Errorf("rate_delete: got %s %s", req.Method, req.Path)
	}
}

func TestBuildRequest_UnlockMonth(t *testing.T) {
	req, _ := BuildRequest(mustDescribe(t, "user"), "unlock_month", 2, nil,
		map[string]any{"month": "2026-02"})
	if req.Method != "POST" || req.Path != "/api/users/2/unlock-month" {
		t.Errorf("got %s %s", req.Method, req.Path)
	}
	if req.Body["month"] != "2026-02" {
		t.Errorf("got body %v", req.Body)
	}
}
