package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vetsimlabs/vetrec/internal/domain"
)

// WhereClause represents a parsed --where condition
type WhereClause struct {
	Field    string
	Operator string
	Value    string
	regex    *regexp.Regexp // Compiled regex for ~ and !~ operators
}

// ParseWhereClause parses a where clause like "status=completed" or
// "scenario~client". Supported operators: =, !=, ~, !~, ^, $
func ParseWhereClause(clause string) (*WhereClause, error) {
	// Try operators in order of length (longest first to avoid partial matches)
	operators := []string{"!~", "!=", "~", "=", "^", "$"}

	for _, op := range operators {
		idx := strings.Index(clause, op)
		if idx > 0 {
			field := strings.TrimSpace(clause[:idx])
			value := strings.TrimSpace(clause[idx+len(op):])

			if field == "" || value == "" {
				return nil, fmt.Errorf("invalid where clause: %s", clause)
			}

			wc := &WhereClause{
				Field:    field,
				Operator: op,
				Value:    value,
			}

			// Pre-compile regex for ~ and !~ operators
			if op == "~" || op == "!~" {
				re, err := regexp.Compile(value)
				if err != nil {
					return nil, fmt.Errorf("invalid regex in where clause '%s': %w", clause, err)
				}
				wc.regex = re
			}

			return wc, nil
		}
	}

	return nil, fmt.Errorf("no valid operator found in where clause: %s (use =, !=, ~, !~, ^, $)", clause)
}

// Match checks if a session matches this where clause
func (wc *WhereClause) Match(meta *domain.Session) bool {
	fieldValue := wc.getFieldValue(meta)

	switch wc.Operator {
	case "=":
		return fieldValue == wc.Value
	case "!=":
		return fieldValue != wc.Value
	case "~": // Contains (regex)
		if wc.regex != nil {
			return wc.regex.MatchString(fieldValue)
		}
		return strings.Contains(fieldValue, wc.Value)
	case "!~": // Not contains (regex)
		if wc.regex != nil {
			return !wc.regex.MatchString(fieldValue)
		}
		return !strings.Contains(fieldValue, wc.Value)
	case "^": // Starts with
		return strings.HasPrefix(fieldValue, wc.Value)
	case "$": // Ends with
		return strings.HasSuffix(fieldValue, wc.Value)
	}

	return false
}

// getFieldValue extracts the field value from a session manifest
func (wc *WhereClause) getFieldValue(meta *domain.Session) string {
	switch strings.ToLower(wc.Field) {
	case "session", "id":
		return meta.SessionID
	case "scenario":
		return meta.ScenarioID
	case "name":
		return meta.ScenarioName
	case "status":
		return string(meta.Status)
	case "result":
		if meta.Evaluation == nil {
			return ""
		}
		return string(meta.Evaluation.Result)
	case "duration":
		return strconv.FormatInt(meta.Duration, 10)
	default:
		return ""
	}
}

// WhereFilter is a filter that applies multiple where clauses (AND logic)
type WhereFilter struct {
	clauses []*WhereClause
}

// NewWhereFilter creates a filter from multiple where clause strings
func NewWhereFilter(whereClauses []string) (*WhereFilter, error) {
	if len(whereClauses) == 0 {
		return nil, nil
	}

	filter := &WhereFilter{}
	for _, clause := range whereClauses {
		wc, err := ParseWhereClause(clause)
		if err != nil {
			return nil, err
		}
		filter.clauses = append(filter.clauses, wc)
	}

	return filter, nil
}

// Match returns true if the session matches ALL where clauses (AND logic)
func (f *WhereFilter) Match(meta *domain.Session) bool {
	if f == nil {
		return true
	}
	for _, clause := range f.clauses {
		if !clause.Match(meta) {
			return false
		}
	}
	return true
}
