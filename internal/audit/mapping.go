package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP request line.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRequest maps an HTTP method and path to an audit action and resource.
// The resource is the first path segment (e.g. /patients/42 -> patients). The action is
// list for a collection GET, get for an item GET, and create, update or delete for writes.
func ParseRequest(method, path string) ActionResource {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := strings.ToLower(segments[0])
	item := len(segments) > 1
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		if item {
			return ActionResource{Action: "get", Resource: resource}
		}
		return ActionResource{Action: "list", Resource: resource}
	case "POST":
		return ActionResource{Action: "create", Resource: resource}
	case "PUT", "PATCH":
		return ActionResource{Action: "update", Resource: resource}
	case "DELETE":
		return ActionResource{Action: "delete", Resource: resource}
	default:
		return ActionResource{Action: strings.ToLower(method), Resource: resource}
	}
}
