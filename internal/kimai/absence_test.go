package kimai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Range splitting
// ---------------------------------------------------------------------------

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad date %s: %v", value, err)
	}
	return d
}

func TestSplitAbsenceRange_SingleDay(t *testing.T) {
	segments := splitAbsenceRange(day(t, "2026-07-01"), day(t, "2026-07-01"))
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
}

func TestSplitAbsenceRange_YearBoundary(t *testing.T) {
	// 45 days from 2025-12-10 to 2026-01-23: one cut at the year boundary,
	// both halves under the 30-day cap.
	segments := splitAbsenceRange(day(t, "2025-12-10"), day(t, "2026-01-23"))
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(segments), segments)
	}
	if got := segments[0][1].Format("2006-01-02"); got != "2025-12-31" {
		t.Errorf("first segment must end at year boundary, got %s", got)
	}
	if got := segments[1][0].Format("2006-01-02"); got != "2026-01-01" {
		t.Errorf("second segment must start on Jan 1, got %s", got)
	}
	if got := segments[1][1].Format("2006-01-02"); got != "2026-01-23" {
		t.Errorf("second segment must end at range end, got %s", got)
	}
}

func TestSplitAbsenceRange_MaxSpan(t *testing.T) {
	// 40 days inside one year splits at the 30-day cap.
	segments := splitAbsenceRange(day(t, "2026-03-01"), day(t, "2026-04-09"))
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if got := segments[0][1].Format("2006-01-02"); got != "2026-03-30" {
		t.Errorf("first segment must end after 30 days, got %s", got)
	}
	if got := segments[1][0].Format("2006-01-02"); got != "2026-03-31" {
		t.Errorf("segments must be consecutive, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// Create with auto-split
// ---------------------------------------------------------------------------

func absenceData(date, end string) map[string]any {
	data := map[string]any{
		"type":    "holiday",
		"date":    date,
		"comment": "annual leave",
	}
	if end != "" {
		data["end"] = end
	}
	return data
}

func TestCreateAbsence_NoSplitPassesThrough(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/absences", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"id":5,"date":"2026-07-01"}`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()
	router := NewRouter(NewRegistry(), NewClient(ts.URL, "test-token"))

	out := router.Handle(context.Background(), Invocation{
		Kind: "absence", Action: "create",
		Data: absenceData("2026-07-01", "2026-07-10"),
	})
	if !out.Success {
		t.Fatalf("expected success, got %+v", out.Error)
	}
	if body["date"] != "2026-07-01" || body["end"] != "2026-07-10" {
		t.Errorf("range must pass through unsplit, got %v", body)
	}
	if out.Data.(map[string]any)["id"] != float64(5) {
		t.Errorf("expected upstream payload, got %v", out.Data)
	}
}

func TestCreateAbsence_SplitAllSucceed(t *testing.T) {
	var bodies []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/absences", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"id":5}`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()
	router := NewRouter(NewRegistry(), NewClient(ts.URL, "test-token"))

	out := router.Handle(context.Background(), Invocation{
		Kind: "absence", Action: "create",
		Data: absenceData("2025-12-10", "2026-01-23"),
	})
	if !out.Success {
		t.Fatalf("expected success, got %+v", out.Error)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", len(bodies))
	}
	if bodies[0]["end"] != "2025-12-31" || bodies[1]["date"] != "2026-01-01" {
		t.Errorf("segments wrong: %v", bodies)
	}
	result := out.Data.(map[string]any)
	if result["count"] != 2 {
		t.Errorf("expected count 2, got %v", result)
	}
}

func TestCreateAbsence_PartialFailureKeepsEarlierSegments(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/absences", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"overlapping absence"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":5}`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()
	router := NewRouter(NewRegistry(), NewClient(ts.URL, "test-token"))

	out := router.Handle(context.Background(), Invocation{
		Kind: "absence", Action: "create",
		Data: absenceData("2025-12-10", "2026-01-23"),
	})
	if out.Success {
		t.Fatal("expected partial failure")
	}
	if out.Error.Kind != ErrorPartial {
		t.Fatalf("expected partial kind, got %s", out.Error.Kind)
	}
	segments := out.Error.Details.([]AbsenceSegment)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segment reports, got %d", len(segments))
	}
	if segments[0].Status != "created" {
		t.Errorf("first segment must stay created, got %s", segments[0].Status)
	}
	if segments[1].Status != "failed" || segments[1].Error == "" {
		t.Errorf("second segment must report its failure, got %+v", segments[1])
	}
}

func TestCreateAbsence_EndBeforeStart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid range must not reach the network")
	}))
	defer ts.Close()
	router := NewRouter(NewRegistry(), NewClient(ts.URL, "test-token"))

	out := router.Handle(context.Background(), Invocation{
		Kind: "absence", Action: "create",
		Data: absenceData("2026-07-10", "2026-07-01"),
	})
	if out.Success || out.Error.Kind != ErrorValidation {
		t.Fatalf("expected validation failure, got %+v", out)
	}
}
