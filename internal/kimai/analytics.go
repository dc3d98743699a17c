package kimai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// TimesheetStatsParams are parameters for timesheet statistics.
type TimesheetStatsParams struct {
	User     string // user id, or "all"
	Begin    string // ISO datetime or date
	End      string
	Project  int
	Activity int
	Customer int
	Billable string // "", "0" or "1"
	Format   string // "json" (default) or "xlsx"
}

// TimesheetStatsResult is the aggregated view over the matching entries.
type TimesheetStatsResult struct {
	Period       string           `json:"period,omitempty"`
	Filters      map[string]any   `json:"filters"`
	Summary      map[string]any   `json:"summary"`
	ByProject    []map[string]any `json:"by_project"`
	ByActivity   []map[string]any `json:"by_activity"`
	ByUser       []map[string]any `json:"by_user"`
	ByDay        []map[string]any `json:"by_day"`
	ByWeek       []map[string]any `json:"by_week"`
	ByMonth      []map[string]any `json:"by_month"`
	TopProjects  []map[string]any `json:"top_projects"`
	Workbook     string           `json:"workbook,omitempty"` // base64 xlsx when requested
	WorkbookName string           `json:"workbook_name,omitempty"`
}

// workDayHours is the baseline used for overtime and person-day figures.
const workDayHours = 8.0

// StatsGenerator aggregates timesheet entries into summary statistics.
type StatsGenerator struct {
	client *Client
}

// NewStatsGenerator creates a new stats generator.
func NewStatsGenerator(client *Client) *StatsGenerator {
	return &StatsGenerator{client: client}
}

// Generate fetches every matching entry and reduces them. Read-only and
// idempotent; repeated calls with the same parameters hit upstream the
// same way.
func (sg *StatsGenerator) Generate(ctx context.Context, params TimesheetStatsParams) (*TimesheetStatsResult, error) {
	result := &TimesheetStatsResult{
		Filters: map[string]any{},
	}
	if params.User != "" {
		result.Filters["user"] = params.User
	}
	if params.Project > 0 {
		result.Filters["project"] = params.Project
	}
	if params.Activity > 0 {
		result.Filters["activity"] = params.Activity
	}
	if params.Customer > 0 {
		result.Filters["customer"] = params.Customer
	}
	if params.Begin != "" || params.End != "" {
		result.Period = fmt.Sprintf("%s ~ %s", params.Begin, params.End)
	}

	entries, err := sg.fetchAllEntries(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timesheets: %w", err)
	}

	projectNames, err := sg.fetchProjectNames(ctx)
	if err != nil {
		// Names are cosmetic; fall back to ids.
		projectNames = map[int]string{}
	}
	userNames, err := sg.fetchUserNames(ctx)
	if err != nil {
		userNames = map[int]string{}
	}

	sg.calculateSummary(result, entries)
	sg.calculateByProject(result, entries, projectNames)
	sg.calculateByActivity(result, entries)
	sg.calculateByUser(result, entries, userNames)
	sg.calculateTrends(result, entries)
	sg.calculateTopProjects(result, projectNames)

	if params.Format == "xlsx" {
		workbook, err := sg.buildWorkbook(result, entries, projectNames)
		if err != nil {
			return nil, fmt.Errorf("failed to build workbook: %w", err)
		}
		result.Workbook = base64.StdEncoding.EncodeToString(workbook)
		result.WorkbookName = fmt.Sprintf("timesheet-stats-%s.xlsx", time.Now().Format("2006-01-02"))
	}

	return result, nil
}

// fetchAllEntries pages through the timesheet collection until exhausted.
func (sg *StatsGenerator) fetchAllEntries(ctx context.Context, params TimesheetStatsParams) ([]Timesheet, error) {
	const pageSize = 100

	query := url.Values{}
	query.Set("size", strconv.Itoa(pageSize))
	if params.User != "" {
		query.Set("user", params.User)
	}
	if params.Begin != "" {
		query.Set("begin", params.Begin)
	}
	if params.End != "" {
		query.Set("end", params.End)
	}
	if params.Project > 0 {
		query.Set("project", strconv.Itoa(params.Project))
	}
	if params.Activity > 0 {
		query.Set("activity", strconv.Itoa(params.Activity))
	}
	if params.Customer > 0 {
		query.Set("customer", strconv.Itoa(params.Customer))
	}
	if params.Billable != "" {
		query.Set("billable", params.Billable)
	}

	var all []Timesheet
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		entries, _, err := sg.client.ListTimesheets(ctx, query)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if len(entries) < pageSize {
			break
		}
	}
	return all, nil
}

func (sg *StatsGenerator) fetchProjectNames(ctx context.Context) (map[int]string, error) {
	projects, err := sg.client.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}

func (sg *StatsGenerator) fetchUserNames(ctx context.Context) (map[int]string, error) {
	users, err := sg.client.ListUsers(ctx, 1)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(users))
	for _, u := range users {
		name := u.Alias
		if name == "" {
			name = u.Username
		}
		names[u.ID] = name
	}
	return names, nil
}

func (sg *StatsGenerator) calculateSummary(result *TimesheetStatsResult, entries []Timesheet) {
	var totalHours, billableHours float64
	running := 0
	days := make(map[string]bool)
	hourOfDay := make(map[int]int)

	for _, entry := range entries {
		hours := float64(entry.Duration) / 3600
		totalHours += hours
		if entry.Billable {
			billableHours += hours
		}
		if entry.Running() {
			running++
		}
		if t, err := ParseDateTime(entry.Begin); err == nil {
			days[t.Format("2006-01-02")] = true
			hourOfDay[t.Hour()]++
		}
	}

	peakHour := -1
	peakCount := 0
	for hour, count := range hourOfDay {
		if count > peakCount || (count == peakCount && hour < peakHour) {
			peakHour, peakCount = hour, count
		}
	}

	workingDays := len(days)
	overtime := totalHours - float64(workingDays)*workDayHours
	if overtime < 0 {
		overtime = 0
	}

	summary := map[string]any{
		"entry_count":        len(entries),
		"total_hours":        roundTo(totalHours, 2),
		"billable_hours":     roundTo(billableHours, 2),
		"non_billable_hours": roundTo(totalHours-billableHours, 2),
		"running_timers":     running,
		"working_days":       workingDays,
		"overtime_hours":     roundTo(overtime, 2),
		"person_days":        roundTo(totalHours/workDayHours, 2),
	}
	if workingDays > 0 {
		summary["avg_hours_per_day"] = roundTo(totalHours/float64(workingDays), 2)
	}
	if peakHour >= 0 {
		summary["peak_hour"] = fmt.Sprintf("%02d:00", peakHour)
	}
	result.Summary = summary
}

func (sg *StatsGenerator) calculateByProject(result *TimesheetStatsResult, entries []Timesheet, names map[int]string) {
	projectHours := make(map[int]float64)
	projectEntries := make(map[int]int)

	for _, entry := range entries {
		projectHours[entry.Project] += float64(entry.Duration) / 3600
		projectEntries[entry.Project]++
	}

	var byProject []map[string]any
	for id, hours := range projectHours {
		name := names[id]
		if name == "" {
			name = fmt.Sprintf("project %d", id)
		}
		byProject = append(byProject, map[string]any{
			"project":     id,
			"name":        name,
			"hours":       roundTo(hours, 2),
			"entry_count": projectEntries[id],
		})
	}

	sort.Slice(byProject, func(i, j int) bool {
		return byProject[i]["hours"].(float64) > byProject[j]["hours"].(float64)
	})
	result.ByProject = byProject
}

func (sg *StatsGenerator) calculateByActivity(result *TimesheetStatsResult, entries []Timesheet) {
	activityHours := make(map[int]float64)
	var totalHours float64

	for _, entry := range entries {
		hours := float64(entry.Duration) / 3600
		activityHours[entry.Activity] += hours
		totalHours += hours
	}

	var byActivity []map[string]any
	for id, hours := range activityHours {
		percentage := 0.0
		if totalHours > 0 {
			percentage = hours / totalHours * 100
		}
		byActivity = append(byActivity, map[string]any{
			"activity":   id,
			"hours":      roundTo(hours, 2),
			"percentage": roundTo(percentage, 2),
		})
	}

	sort.Slice(byActivity, func(i, j int) bool {
		return byActivity[i]["hours"].(float64) > byActivity[j]["hours"].(float64)
	})
	result.ByActivity = byActivity
}

func (sg *StatsGenerator) calculateByUser(result *TimesheetStatsResult, entries []Timesheet, names map[int]string) {
	userHours := make(map[int]float64)
	userEntries := make(map[int]int)

	for _, entry := range entries {
		userHours[entry.User] += float64(entry.Duration) / 3600
		userEntries[entry.User]++
	}

	var byUser []map[string]any
	for id, hours := range userHours {
		name := names[id]
		if name == "" {
			name = fmt.Sprintf("user %d", id)
		}
		byUser = append(byUser, map[string]any{
			"user":        id,
			"name":        name,
			"hours":       roundTo(hours, 2),
			"entry_count": userEntries[id],
		})
	}

	sort.Slice(byUser, func(i, j int) bool {
		return byUser[i]["hours"].(float64) > byUser[j]["hours"].(float64)
	})
	result.ByUser = byUser
}

func (sg *StatsGenerator) calculateTrends(result *TimesheetStatsResult, entries []Timesheet) {
	dayHours := make(map[string]float64)
	weekHours := make(map[string]float64)
	monthHours := make(map[string]float64)

	for _, entry := range entries {
		t, err := ParseDateTime(entry.Begin)
		if err != nil {
			continue
		}
		hours := float64(entry.Duration) / 3600
		dayHours[t.Format("2006-01-02")] += hours
		year, week := t.ISOWeek()
		weekHours[fmt.Sprintf("%d-W%02d", year, week)] += hours
		monthHours[t.Format("2006-01")] += hours
	}

	result.ByDay = bucketTrend(dayHours, "day")
	result.ByWeek = bucketTrend(weekHours, "week")
	result.ByMonth = bucketTrend(monthHours, "month")
}

func bucketTrend(buckets map[string]float64, label string) []map[string]any {
	var trend []map[string]any
	for key, hours := range buckets {
		trend = append(trend, map[string]any{
			label:   key,
			"hours": roundTo(hours, 2),
		})
	}
	sort.Slice(trend, func(i, j int) bool {
		return trend[i][label].(string) < trend[j][label].(string)
	})
	return trend
}

func (sg *StatsGenerator) calculateTopProjects(result *TimesheetStatsResult, names map[int]string) {
	limit := 5
	if len(result.ByProject) < limit {
		limit = len(result.ByProject)
	}
	result.TopProjects = result.ByProject[:limit]
}

// buildWorkbook renders the stats plus the raw entries as an XLSX file.
func (sg *StatsGenerator) buildWorkbook(result *TimesheetStatsResult, entries []Timesheet, names map[int]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const summarySheet = "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	row := 1
	setCell := func(sheet string, col string, r int, value any) {
		_ = f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, r), value)
	}

	setCell(summarySheet, "A", row, "Timesheet Statistics")
	row++
	if result.Period != "" {
		setCell(summarySheet, "A", row, "Period")
		setCell(summarySheet, "B", row, result.Period)
		row++
	}
	row++

	keys := make([]string, 0, len(result.Summary))
	for key := range result.Summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		setCell(summarySheet, "A", row, key)
		setCell(summarySheet, "B", row, result.Summary[key])
		row++
	}

	const entrySheet = "Entries"
	if _, err := f.NewSheet(entrySheet); err != nil {
		return nil, err
	}
	headers := []string{"ID", "Begin", "End", "Hours", "Project", "Activity", "User", "Billable", "Description"}
	for i, header := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		setCell(entrySheet, col, 1, header)
	}
	for i, entry := range entries {
		r := i + 2
		end := ""
		if entry.End != nil {
			end = *entry.End
		}
		projectName := names[entry.Project]
		if projectName == "" {
			projectName = strconv.Itoa(entry.Project)
		}
		values := []any{
			entry.ID, entry.Begin, end,
			roundTo(float64(entry.Duration)/3600, 2),
			projectName, entry.Activity, entry.User,
			entry.Billable, entry.Description,
		}
		for j, value := range values {
			col, _ := excelize.ColumnNumberToName(j + 1)
			setCell(entrySheet, col, r, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func roundTo(val float64, precision int) float64 {
	ratio := float64(1)
	for i := 0; i < precision; i++ {
		ratio *= 10
	}
	return float64(int(val*ratio+0.5)) / ratio
}
