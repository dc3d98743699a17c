package kimai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe_UnknownKind(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Describe("widget")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widget")
}

func TestDescribe_AllKindsRegistered(t *testing.T) {
	reg := NewRegistry()

	for _, kind := range []string{
		"project", "activity", "customer", "user", "team",
		"tag", "invoice", "holiday", "timesheet", "absence",
	} {
		desc, err := reg.Describe(kind)
		require.NoError(t, err, kind)
		assert.NotEmpty(t, desc.CollectionPath, kind)
		assert.True(t, desc.Supports("list"), "%s must support list", kind)
	}
}

func TestValidate_UnsupportedAction(t *testing.T) {
	reg := NewRegistry()

	violations := reg.Validate("tag", "update", 3, nil, map[string]any{"name": "x"})
	require.Len(t, violations, 1)
	assert.Equal(t, "action", violations[0].Field)
}

func TestValidate_IDRequirement(t *testing.T) {
	reg := NewRegistry()

	for _, action := range []string{"get", "update", "delete"} {
		data := map[string]any{"name": "x"}
		violations := reg.Validate("project", action, 0, nil, data)
		require.NotEmpty(t, violations, action)
		assert.Equal(t, "id", violations[0].Field, action)

		violations = reg.Validate("project", action, 7, nil, data)
		assert.Empty(t, violations, action)
	}
}

func TestValidate_DataRequirement(t *testing.T) {
	reg := NewRegistry()

	violations := reg.Validate("project", "update", 7, nil, nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "data", violations[0].Field)
}

func TestValidate_MissingRequiredFieldsListed(t *testing.T) {
	reg := NewRegistry()

	// project create requires name and customer; both missing must both
	// be reported in one pass.
	violations := reg.Validate("project", "create", 0, nil, map[string]any{"comment": "hi"})
	require.Len(t, violations, 2)
	fields := []string{violations[0].Field, violations[1].Field}
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "customer")
}

func TestValidate_FieldTypes(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		filters map[string]any
		data    map[string]any
		bad     string
	}{
		{
			name:    "integer filter rejects text",
			filters: map[string]any{"customer": "soon"},
			bad:     "customer",
		},
		{
			name:    "boolean visible filter passes as integer",
			filters: map[string]any{"visible": true},
		},
		{
			name:    "numeric visible filter passes",
			filters: map[string]any{"visible": float64(3)},
		},
		{
			name:    "invalid order enum",
			filters: map[string]any{"order": "SIDEWAYS"},
			bad:     "order",
		},
		{
			name: "invalid orderDate",
			data: map[string]any{"orderDate": "31-12-2026"},
			bad:  "orderDate",
		},
		{
			name: "valid orderDate",
			data: map[string]any{"orderDate": "2026-12-31"},
		},
		{
			name: "undeclared field passes through",
			data: map[string]any{"somethingNew": 42},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			violations := reg.Validate("project", "list", 0, tc.filters, tc.data)
			if tc.bad == "" {
				assert.Empty(t, violations)
				return
			}
			require.Len(t, violations, 1)
			assert.Equal(t, tc.bad, violations[0].Field)
		})
	}
}

func TestValidate_TimesheetDateTime(t *testing.T) {
	reg := NewRegistry()

	data := map[string]any{
		"begin":    "2026-03-02T09:00:00",
		"project":  float64(1),
		"activity": float64(5),
	}
	assert.Empty(t, reg.Validate("timesheet", "create", 0, nil, data))

	data["begin"] = "yesterday morning"
	violations := reg.Validate("timesheet", "create", 0, nil, data)
	require.Len(t, violations, 1)
	assert.Equal(t, "begin", violations[0].Field)
}

func TestValidate_AbsenceTypeEnum(t *testing.T) {
	reg := NewRegistry()

	data := map[string]any{
		"type":    "sabbatical",
		"date":    "2026-07-01",
		"comment": "long break",
	}
	violations := reg.Validate("absence", "create", 0, nil, data)
	require.Len(t, violations, 1)
	assert.Equal(t, "type", violations[0].Field)
}

func TestParseDateTime_Formats(t *testing.T) {
	for _, input := range []string{
		"2026-03-02T09:00:00Z",
		"2026-03-02T09:00:00+01:00",
		"2026-03-02T09:00:00",
		"2026-03-02",
	} {
		_, err := ParseDateTime(input)
		assert.NoError(t, err, input)
	}

	_, err := ParseDateTime("02.03.2026 09:00")
	assert.Error(t, err)
}
