package kimai

import (
	"context"
	"fmt"
	"time"
)

// maxAbsenceSpanDays is the longest range one upstream absence request
// may cover; longer ranges are split into consecutive segments.
const maxAbsenceSpanDays = 30

// AbsenceSegment is the outcome of one slice of a split absence request.
type AbsenceSegment struct {
	Date   string `json:"date"`
	End    string `json:"end,omitempty"`
	Status string `json:"status"` // created or failed
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// createAbsence creates an absence, decomposing ranges that cross a
// calendar-year boundary or exceed the maximum span into sequential
// per-segment requests. Earlier segments are not rolled back when a
// later one fails; the caller gets per-segment status instead.
func (r *Router) createAbsence(ctx context.Context, desc *Descriptor, data map[string]any) Output {
	start, end, err := absenceRange(data)
	if err != nil {
		return ValidationFailure([]Violation{{Field: "date", Message: err.Error()}})
	}

	segments := splitAbsenceRange(start, end)
	if len(segments) == 1 {
		return r.createAbsenceSegment(ctx, desc, data, segments[0])
	}

	results := make([]AbsenceSegment, 0, len(segments))
	created := 0
	for _, seg := range segments {
		out := r.createAbsenceSegment(ctx, desc, data, seg)
		record := AbsenceSegment{
			Date: seg[0].Format("2006-01-02"),
			End:  seg[1].Format("2006-01-02"),
		}
		if out.Success {
			record.Status = "created"
			record.Result = out.Data
			created++
		} else {
			record.Status = "failed"
			record.Error = out.Error.Message
		}
		results = append(results, record)
	}

	if created == len(segments) {
		return Success(map[string]any{
			"segments": results,
			"count":    created,
		})
	}
	message := fmt.Sprintf("%d of %d absence segments created", created, len(segments))
	return PartialFailure(message, results)
}

func (r *Router) createAbsenceSegment(ctx context.Context, desc *Descriptor, data map[string]any, seg [2]time.Time) Output {
	body := make(map[string]any, len(data))
	for k, v := range data {
		body[k] = v
	}
	body["date"] = seg[0].Format("2006-01-02")
	if seg[1].After(seg[0]) {
		body["end"] = seg[1].Format("2006-01-02")
	} else {
		delete(body, "end")
	}

	req := &Request{Method: "POST", Path: desc.CollectionPath, Body: body}
	result, err := r.client.Send(ctx, req)
	if err != nil {
		return NormalizeError(err)
	}
	return Normalize(desc, result, nil)
}

func absenceRange(data map[string]any) (time.Time, time.Time, error) {
	startStr, _ := data["date"].(string)
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", startStr)
	}

	end := start
	if endStr, ok := data["end"].(string); ok && endStr != "" {
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q (expected YYYY-MM-DD)", endStr)
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end %s is before date %s", endStr, startStr)
		}
	}
	return start, end, nil
}

// splitAbsenceRange cuts [start, end] at every calendar-year boundary,
// then caps each piece at maxAbsenceSpanDays days.
func splitAbsenceRange(start, end time.Time) [][2]time.Time {
	var segments [][2]time.Time
	cursor := start
	for !cursor.After(end) {
		segEnd := end
		if yearEnd := time.Date(cursor.Year(), 12, 31, 0, 0, 0, 0, cursor.Location()); segEnd.After(yearEnd) {
			segEnd = yearEnd
		}
		if capEnd := cursor.AddDate(0, 0, maxAbsenceSpanDays-1); segEnd.After(capEnd) {
			segEnd = capEnd
		}
		segments = append(segments, [2]time.Time{cursor, segEnd})
		cursor = segEnd.AddDate(0, 0, 1)
	}
	return segments
}
