package sqlstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMutatingQuery is returned for statements that could change the database.
var ErrMutatingQuery = errors.New("only read-only SELECT statements are allowed")

var (
	forbiddenKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX|UPSERT|TRUNCATE|GRANT)\b`)
	leadingKeyword    = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)
	stringLiteral     = regexp.MustCompile(`'(?:[^']|'')*'`)
	lineComment       = regexp.MustCompile(`--[^\n]*`)
	blockComment      = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// replaceStatement matches REPLACE used as a statement. REPLACE followed by
// "(" is the string function and is allowed.
var replaceStatement = regexp.MustCompile(`(?i)\bREPLACE\b\s*([^\s(]|$)`)

// CheckReadOnly accepts a single SELECT or WITH statement. Keywords inside
// string literals are ignored.
func CheckReadOnly(query string) error {
	stripped := blockComment.ReplaceAllString(query, " ")
	stripped = lineComment.ReplaceAllString(stripped, " ")
	stripped = stringLiteral.ReplaceAllString(stripped, "''")
	stripped = strings.TrimSpace(stripped)
	stripped = strings.TrimSuffix(stripped, ";")

	if stripped == "" {
		return errors.New("empty query")
	}
	if strings.Contains(stripped, ";") {
		return fmt.Errorf("%w: multiple statements", ErrMutatingQuery)
	}
	if !leadingKeyword.MatchString(stripped) {
		return ErrMutatingQuery
	}
	if kw := forbiddenKeywords.FindString(stripped); kw != "" {
		return fmt.Errorf("%w: found %s", ErrMutatingQuery, strings.ToUpper(kw))
	}
	if replaceStatement.MatchString(stripped) {
		return fmt.Errorf("%w: found REPLACE", ErrMutatingQuery)
	}
	return nil
}

// extractSQL strips markdown fences and surrounding prose from a model answer.
func extractSQL(raw string) string {
	text := strings.TrimSpace(raw)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			if lang := strings.TrimSpace(text[:nl]); lang == "" || strings.EqualFold(lang, "sql") || strings.EqualFold(lang, "sqlite") {
				text = text[nl+1:]
			}
		}
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	text = strings.TrimSpace(text)
	if loc := leadingKeyword.FindStringIndex(text); loc == nil {
		upper := strings.ToUpper(text)
		for _, kw := range []string{"WITH ", "SELECT "} {
			if i := strings.Index(upper, kw); i >= 0 {
				text = text[i:]
				break
			}
		}
	}
	return strings.TrimSpace(text)
}
