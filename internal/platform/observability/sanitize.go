package observability

import "unicode"

const defaultStringLimit = 256

// sanitizeString drops control characters and bounds the length to keep log lines well-formed.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) == limit {
			break
		}
	}
	return string(cleaned)
}

// SanitizeRoute bounds a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod bounds an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeID bounds user and session identifiers.
func SanitizeID(id string) string {
	return sanitizeString(id, 64)
}
