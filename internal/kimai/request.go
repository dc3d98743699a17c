package kimai

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Request is one fully-resolved upstream call. Built fresh per invocation,
// never reused.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
	IsList bool // response payload is a JSON array
}

// targetPlurals maps a team access target kind to the sub-resource segment
// Kimai uses for it.
var targetPlurals = map[string]string{
	"customer": "customers",
	"project":  "projects",
	"activity": "activities",
}

// BuildRequest maps a validated (action, id, filters, data) tuple onto the
// HTTP call Kimai expects. It performs no I/O; callers must have validated
// the invocation first.
func BuildRequest(desc *Descriptor, action string, id int, filters, data map[string]any) (*Request, error) {
	base := desc.CollectionPath
	item := fmt.Sprintf("%s/%d", base, id)

	switch action {
	case "list":
		return &Request{Method: "GET", Path: base, Query: buildQuery(desc, filters), IsList: true}, nil
	case "get":
		return &Request{Method: "GET", Path: item}, nil
	case "delete":
		return &Request{Method: "DELETE", Path: item}, nil
	case "create":
		return &Request{Method: "POST", Path: base, Body: data}, nil
	case "update":
		return &Request{Method: "PATCH", Path: item, Body: data}, nil

	case "active", "recent", "types":
		return &Request{
			Method: "GET",
			Path:   base + "/" + action,
			Query:  buildQuery(desc, filters),
			IsList: true,
		}, nil

	case "stop", "restart", "duplicate":
		req := &Request{Method: "PATCH", Path: item + "/" + action}
		if action == "restart" && truthy(data["copy_all"]) {
			req.Body = map[string]any{"copy": "all"}
		}
		return req, nil
	case "export_toggle":
		return &Request{Method: "PATCH", Path: item + "/export"}, nil
	case "meta_update":
		return &Request{Method: "PATCH", Path: item + "/meta", Body: map[string]any{
			"name":  data["name"],
			"value": data["value"],
		}}, nil

	case "approve":
		return &Request{Method: "PATCH", Path: item + "/confirm"}, nil
	case "reject":
		return &Request{Method: "PATCH", Path: item + "/reject"}, nil

	case "add_member", "remove_member":
		userID, err := intField(data, "user")
		if err != nil {
			return nil, err
		}
		method := "POST"
		if action == "remove_member" {
			method = "DELETE"
		}
		return &Request{Method: method, Path: fmt.Sprintf("%s/members/%d", item, userID)}, nil

	case "grant", "revoke":
		target, _ := data["target"].(string)
		targetID, err := intField(data, "target_id")
		if err != nil {
			return nil, err
		}
		method := "POST"
		if action == "revoke" {
			method = "DELETE"
		}
		return &Request{Method: method, Path: fmt.Sprintf("%s/%s/%d", item, targetPlurals[target], targetID)}, nil

	case "unlock_month":
		return &Request{Method: "POST", Path: item + "/unlock-month", Body: map[string]any{
			"month": data["month"],
		}}, nil

	case ActionRateList:
		return &Request{Method: "GET", Path: item + "/rates", IsList: true}, nil
	case ActionRateAdd:
		body := make(map[string]any, len(data))
		for k, v := range data {
			body[k] = v
		}
		return &Request{Method: "POST", Path: item + "/rates", Body: body}, nil
	case ActionRateDelete:
		rateID, err := intField(data, "rate_id")
		if err != nil {
			return nil, err
		}
		return &Request{Method: "DELETE", Path: fmt.Sprintf("%s/rates/%d", item, rateID)}, nil
	}

	return nil, fmt.Errorf("no request mapping for action %q on %s", action, desc.Kind)
}

// buildQuery coerces filters to query parameters. No filters means no
// query string at all; upstream defaults apply.
func buildQuery(desc *Descriptor, filters map[string]any) url.Values {
	if len(filters) == 0 {
		return nil
	}
	query := url.Values{}
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := filters[name]
		if value == nil {
			continue
		}
		if list, ok := value.([]any); ok {
			key := name
			if _, declared := desc.Fields[name]; declared && desc.Fields[name].Type == FieldList {
				key = name + "[]"
			}
			for _, elem := range list {
				query.Add(key, coerceQueryValue(elem))
			}
			continue
		}
		query.Set(name, coerceQueryValue(value))
	}
	return query
}

func coerceQueryValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intField(data map[string]any, name string) (int, error) {
	switch v := data[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("field %q must be an integer id", name)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("field %q is required", name)
	default:
		return 0, fmt.Errorf("field %q must be an integer id", name)
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "1" || v == "true"
	case float64:
		return v != 0
	}
	return false
}
