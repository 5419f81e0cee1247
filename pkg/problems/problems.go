package problems

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"storeapp/pkg/apperr"
)

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://mydomain.com/problems)
// 2. https://example.com/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	return "https://example.com/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }

// Problem is an RFC 7807 body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Write renders err as application/problem+json using the status and text code
// it was classified with.
func Write(w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	code := apperr.TextCode(err)
	p := Problem{
		Type:   Type(slug(code)),
		Title:  http.StatusText(status),
		Status: status,
		Detail: apperr.Message(err),
		Code:   code,
	}
	// storage and internal failures keep backend details out of the response
	if status >= 500 && code != apperr.CodeExternal {
		p.Detail = "the request could not be completed; retry later"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func slug(code string) string {
	return strings.ReplaceAll(strings.ToLower(code), "_", "-")
}
