package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/career-assistant/internal/lang"
)

var (
	// ErrEmptyQuery is reported for blank queries.
	ErrEmptyQuery = errors.New("query is empty")

	errEmptyAnswer = errors.New("model returned an empty answer")
)

// Apology renders the user-facing failure text in the query language.
func Apology(l lang.Language, err error) string {
	return fmt.Sprintf("%s: %v", l.Apology(), err)
}

// IsApology reports whether text is, or ends in, a failure answer produced
// by the router.
func IsApology(text string) bool {
	for _, prefix := range lang.Apologies() {
		if strings.Contains(text, prefix+":") {
			return true
		}
	}
	return false
}
