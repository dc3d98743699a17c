package kimai

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// FieldType is the semantic type of an entity field or filter.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInteger
	FieldDecimal
	FieldBool
	FieldDate
	FieldDateTime
	FieldEnum
	FieldList
)

// Field describes one declared field of an entity schema.
type Field struct {
	Type FieldType
	Enum []string // allowed values when Type == FieldEnum
}

// Descriptor is the static schema for one entity kind: which actions it
// supports, which fields each action requires, and how fields are typed.
type Descriptor struct {
	Kind           string
	CollectionPath string
	Actions        map[string]bool
	Required       map[string][]string // action -> required data fields
	Fields         map[string]Field    // declared data and filter fields
	Strip          []string            // upstream-internal fields removed from single-object output
}

// Supports reports whether the descriptor declares the given action.
func (d *Descriptor) Supports(action string) bool {
	return d.Actions[action]
}

// Registry is the immutable entity schema table. It is built once at
// process start and only read afterwards, so it is safe for concurrent use.
type Registry struct {
	kinds map[string]*Descriptor
}

// Describe returns the schema for an entity kind.
func (r *Registry) Describe(kind string) (*Descriptor, error) {
	d, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q (valid types: %v)", kind, r.Kinds())
	}
	return d, nil
}

// Kinds returns all registered entity kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Violation is a single field-level validation failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// actionNeedsID lists actions that address a single resource.
var actionNeedsID = map[string]bool{
	"get": true, "update": true, "delete": true,
	"approve": true, "reject": true,
	"duplicate": true, "export_toggle": true,
	"stop": true, "restart": true, "meta_update": true,
	"add_member": true, "remove_member": true,
	"grant": true, "revoke": true,
	"unlock_month": true,
	"rate_list":    true, "rate_add": true, "rate_delete": true,
}

// actionNeedsData lists actions that carry a payload.
var actionNeedsData = map[string]bool{
	"create": true, "update": true,
	"rate_add": true, "meta_update": true,
	"add_member": true, "remove_member": true,
	"grant": true, "revoke": true,
	"unlock_month": true, "rate_delete": true,
}

// Validate checks one invocation against the schema and returns every
// violation found, so a caller can report them all at once. An empty
// slice means the invocation is valid. No network calls are made.
func (r *Registry) Validate(kind, action string, id int, filters, data map[string]any) []Violation {
	desc, err := r.Describe(kind)
	if err != nil {
		return []Violation{{Field: "type", Message: err.Error()}}
	}
	return desc.Validate(action, id, filters, data)
}

// Validate checks an action invocation against this descriptor.
func (d *Descriptor) Validate(action string, id int, filters, data map[string]any) []Violation {
	var violations []Violation

	if !d.Supports(action) {
		supported := make([]string, 0, len(d.Actions))
		for a := range d.Actions {
			supported = append(supported, a)
		}
		sort.Strings(supported)
		return []Violation{{
			Field:   "action",
			Message: fmt.Sprintf("action %q is not supported for %s (supported: %v)", action, d.Kind, supported),
		}}
	}

	if actionNeedsID[action] && id <= 0 {
		violations = append(violations, Violation{
			Field:   "id",
			Message: fmt.Sprintf("'id' is required for the %s action", action),
		})
	}

	if actionNeedsData[action] && len(data) == 0 {
		violations = append(violations, Violation{
			Field:   "data",
			Message: fmt.Sprintf("'data' is required for the %s action", action),
		})
	}

	for _, name := range d.Required[action] {
		if _, ok := data[name]; ok {
			continue
		}
		if _, ok := filters[name]; ok {
			continue
		}
		violations = append(violations, Violation{
			Field:   name,
			Message: fmt.Sprintf("field %q is required for %s %s", name, d.Kind, action),
		})
	}

	violations = append(violations, d.checkTypes(filters)...)
	violations = append(violations, d.checkTypes(data)...)

	return violations
}

func (d *Descriptor) checkTypes(values map[string]any) []Violation {
	var violations []Violation
	// Deterministic ordering so one invocation always reports the same list.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field, declared := d.Fields[name]
		if !declared {
			// Undeclared fields pass through; Kimai applies its own rules.
			continue
		}
		if msg := checkFieldType(field, values[name]); msg != "" {
			violations = append(violations, Violation{Field: name, Message: msg})
		}
	}
	return violations
}

func checkFieldType(field Field, value any) string {
	if value == nil {
		return ""
	}
	switch field.Type {
	case FieldString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected a string, got %T", value)
		}
	case FieldInteger:
		if !isInteger(value) {
			return fmt.Sprintf("expected an integer, got %v", value)
		}
	case FieldDecimal:
		if !isNumeric(value) {
			return fmt.Sprintf("expected a number, got %v", value)
		}
	case FieldBool:
		if !isBoolish(value) {
			return fmt.Sprintf("expected a boolean, got %v", value)
		}
	case FieldDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected a YYYY-MM-DD date string, got %T", value)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return fmt.Sprintf("invalid date %q (expected YYYY-MM-DD)", s)
		}
	case FieldDateTime:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected an ISO-8601 datetime string, got %T", value)
		}
		if _, err := ParseDateTime(s); err != nil {
			return fmt.Sprintf("invalid datetime %q (expected ISO-8601)", s)
		}
	case FieldEnum:
		s := fmt.Sprintf("%v", value)
		for _, allowed := range field.Enum {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("value %q is not one of %v", s, field.Enum)
	case FieldList:
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("expected an array, got %T", value)
		}
	}
	return ""
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case bool:
		// Boolean flags are serialized as 0/1 on the wire.
		return true
	case float64:
		return v == float64(int64(v))
	case string:
		_, err := strconv.Atoi(v)
		return err == nil
	}
	return false
}

func isNumeric(value any) bool {
	switch v := value.(type) {
	case int, int32, int64, float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	}
	return false
}

func isBoolish(value any) bool {
	switch v := value.(type) {
	case bool:
		return true
	case float64:
		return v == 0 || v == 1
	case int:
		return v == 0 || v == 1
	case string:
		return v == "0" || v == "1" || v == "true" || v == "false"
	}
	return false
}

// datetimeLayouts are the timestamp shapes Kimai emits and accepts. The
// HTML5 local format (no zone) is what the API documents for forms.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDateTime parses a timestamp in any of the formats Kimai uses.
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
