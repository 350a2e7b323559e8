// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Rule maps a sentinel error to a problem status.
type Rule struct {
	Err    error
	Status int
	Title  string
}

// RespondError maps domain errors to HTTP responses using RFC7807. The
// first rule whose sentinel matches wins; unmatched errors become 500s
// without leaking detail.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	for _, rule := range rules {
		if errors.Is(err, rule.Err) {
			title := rule.Title
			if title == "" {
				title = http.StatusText(rule.Status)
			}
			Problem(w, rule.Status, title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
