package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestServer fakes a Kimai instance and returns the REST server
// pointed at it.
func newTestServer(t *testing.T, upstream http.Handler) *Server {
	t.Helper()
	backend := httptest.NewServer(upstream)
	t.Cleanup(backend.Close)
	return NewServer(Config{KimaiURL: backend.URL, Port: 0})
}

func doRequest(s *Server, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthNoAuth(t *testing.T) {
	s := newTestServer(t, http.NewServeMux())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestMissingTokenRejected(t *testing.T) {
	s := newTestServer(t, http.NewServeMux())

	req := httptest.NewRequest("GET", "/api/v1/entities/project", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestEntityListForwardsFilters(t *testing.T) {
	var gotQuery, gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-Total-Count", "2")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"name":"Website"},{"id":2,"name":"App"}]`))
	})
	s := newTestServer(t, mux)

	rec := doRequest(s, "GET", "/api/v1/entities/project?visible=1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotQuery != "visible=1" {
		t.Errorf("upstream query = %q, want visible=1", gotQuery)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("upstream auth = %q", gotAuth)
	}

	body := decodeJSON(t, rec)
	if body["success"] != true {
		t.Fatalf("success = %v, body %s", body["success"], rec.Body.String())
	}
	data := body["data"].(map[string]any)
	if total := data["total"].(float64); total != 2 {
		t.Errorf("total = %v, want 2", total)
	}
}

func TestUnknownEntityKind(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { hits++ })
	s := newTestServer(t, mux)

	rec := doRequest(s, "GET", "/api/v1/entities/ticket", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeJSON(t, rec)
	errObj := body["error"].(map[string]any)
	if errObj["kind"] != "validation" {
		t.Errorf("error kind = %v, want validation", errObj["kind"])
	}
	if hits != 0 {
		t.Errorf("upstream hit %d times on a validation failure", hits)
	}
}

func TestEntityCreate(t *testing.T) {
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"name":"urgent"}`))
	})
	s := newTestServer(t, mux)

	rec := doRequest(s, "POST", "/api/v1/entities/tag", `{"name":"urgent"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotBody["name"] != "urgent" {
		t.Errorf("upstream body = %v", gotBody)
	}
}

func TestEntityNotFoundStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects/99", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not found"}`))
	})
	s := newTestServer(t, mux)

	rec := doRequest(s, "GET", "/api/v1/entities/project/99", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeJSON(t, rec)
	errObj := body["error"].(map[string]any)
	if errObj["kind"] != "not_found" {
		t.Errorf("error kind = %v, want not_found", errObj["kind"])
	}
}

func TestTeamGrantAction(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/teams/3/activities/7", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":3,"name":"Backend"}`))
	})
	s := newTestServer(t, mux)

	rec := doRequest(s, "POST", "/api/v1/entities/team/3/actions/grant",
		`{"target":"activity","target_id":7}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotPath != "/api/teams/3/activities/7" {
		t.Errorf("upstream path = %q", gotPath)
	}
}

func TestMeEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":5,"username":"anna","enabled":true}`))
	})
	s := newTestServer(t, mux)

	rec := doRequest(s, "GET", "/api/v1/me", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["username"] != "anna" {
		t.Errorf("username = %v, want anna", body["username"])
	}
}

func TestTimerStartConflict(t *testing.T) {
	posts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/timesheets/active", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":44,"begin":"2026-03-02T09:00:00+0100","project":1,"activity":2}]`))
	})
	mux.HandleFunc("POST /api/timesheets", func(w http.ResponseWriter, r *http.Request) { posts++ })
	s := newTestServer(t, mux)

	rec := doRequest(s, "POST", "/api/v1/timer/start", `{"project":1,"activity":2}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}
	if posts != 0 {
		t.Errorf("timesheet created despite running timer")
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/timesheets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"begin":"2026-03-02T09:00:00+0100","end":"2026-03-02T13:00:00+0100","duration":14400,"project":1,"activity":2,"user":5,"billable":true}]`))
	})
	mux.HandleFunc("GET /api/projects", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"name":"Website"}]`))
	})
	s := newTestServer(t, mux)

	rec := doRequest(s, "GET", "/api/v1/analytics/timesheets?user=5&begin=2026-03-01&end=2026-03-31", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	summary := body["summary"].(map[string]any)
	if summary["total_hours"].(float64) != 4 {
		t.Errorf("total_hours = %v, want 4", summary["total_hours"])
	}
}
