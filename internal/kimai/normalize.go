package kimai

// Output is the uniform shape every tool returns to the caller.
type Output struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *OutputError `json:"error,omitempty"`
}

// OutputError carries the classified failure back to the caller.
type OutputError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// ListPage is the wrapped form of a list response. Total is a pointer so
// an upstream count of zero stays distinguishable from a missing header.
type ListPage struct {
	Items []any `json:"items"`
	Page  int   `json:"page,omitempty"`
	Size  int   `json:"size,omitempty"`
	Total *int  `json:"total,omitempty"`
}

// Success wraps a payload in a successful output.
func Success(data any) Output {
	return Output{Success: true, Data: data}
}

// Normalize maps an upstream result to the uniform output shape. List
// bodies are wrapped with their pagination metadata; single objects pass
// through minus the descriptor's stripped fields.
func Normalize(desc *Descriptor, result *Result, filters map[string]any) Output {
	if result.IsList {
		page := ListPage{Items: result.Items}
		if page.Items == nil {
			page.Items = []any{}
		}
		if n, ok := intFilter(filters, "page"); ok {
			page.Page = n
		}
		if n, ok := intFilter(filters, "size"); ok {
			page.Size = n
		}
		if result.Total >= 0 {
			total := result.Total
			page.Total = &total
		}
		return Success(page)
	}

	payload := result.Payload
	if obj, ok := payload.(map[string]any); ok && desc != nil {
		for _, field := range desc.Strip {
			delete(obj, field)
		}
	}
	if payload == nil {
		// Deletes and some toggles return an empty body.
		payload = map[string]any{"status": "ok"}
	}
	return Success(payload)
}

// NormalizeError maps any error into the uniform failure shape.
func NormalizeError(err error) Output {
	if apiErr, ok := AsAPIError(err); ok {
		out := Output{Error: &OutputError{
			Kind:    apiErr.Kind,
			Message: apiErr.Message,
		}}
		if len(apiErr.FieldErrors) > 0 {
			out.Error.Details = apiErr.FieldErrors
		}
		return out
	}
	return Output{Error: &OutputError{
		Kind:    ErrorServer,
		Message: err.Error(),
	}}
}

// ValidationFailure reports schema violations without touching the network.
func ValidationFailure(violations []Violation) Output {
	return Output{Error: &OutputError{
		Kind:    ErrorValidation,
		Message: "invocation failed validation",
		Details: violations,
	}}
}

// PartialFailure reports a multi-step operation where some steps failed.
func PartialFailure(message string, details any) Output {
	return Output{Error: &OutputError{
		Kind:    ErrorPartial,
		Message: message,
		Details: details,
	}}
}

func intFilter(filters map[string]any, name string) (int, bool) {
	v, ok := filters[name]
	if !ok {
		return 0, false
	}
	n, err := intField(filters, name)
	if err != nil || v == nil {
		return 0, false
	}
	return n, true
}
