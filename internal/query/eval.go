package query

import (
	"strconv"
	"strings"

	"github.com/coffersTech/nanotail/internal/model"
)

// Match evaluates the AST node against a record and returns true if it
// matches. A nil node matches everything.
func Match(node Node, r model.Record) bool {
	if node == nil {
		return true
	}

	switch n := node.(type) {
	case BinaryExpr:
		return evalBinary(n, r)
	case MatchExpr:
		return evalMatch(n, r)
	case NotExpr:
		return !Match(n.Expr, r)
	default:
		return false
	}
}

func evalBinary(expr BinaryExpr, r model.Record) bool {
	left := Match(expr.Left, r)
	right := Match(expr.Right, r)

	switch expr.Op {
	case "AND":
		return left && right
	case "OR":
		return left || right
	default:
		return false
	}
}

func evalMatch(expr MatchExpr, r model.Record) bool {
	// Full-text search (no key specified)
	if expr.Key == "" {
		return matchFullText(expr.Value, r)
	}

	fieldValue := getFieldValue(expr.Key, r)
	queryValue := expr.Value
	if isLevelKey(expr.Key) {
		// Fold the WARNING alias so level:warning and level:warn select
		// the same rows. getFieldValue already canonicalized the field.
		queryValue = model.CanonicalLevel(queryValue)
	}

	switch expr.Op {
	case "=":
		return matchEqual(fieldValue, queryValue)
	case "!=":
		return !matchEqual(fieldValue, queryValue)
	case "CONTAINS":
		return containsIgnoreCase(fieldValue, queryValue)
	default:
		return matchEqual(fieldValue, queryValue)
	}
}

func isLevelKey(key string) bool {
	k := strings.ToLower(key)
	return k == "level" || k == "lvl"
}

// getFieldValue returns the value of a record field by query key.
func getFieldValue(key string, r model.Record) string {
	switch strings.ToLower(key) {
	case "message", "msg":
		return r.Message
	case "level", "lvl":
		return model.CanonicalLevel(r.Level)
	case "timestamp", "ts":
		return r.Timestamp
	case "line":
		return strconv.FormatInt(r.Line, 10)
	case "history":
		return strconv.FormatBool(r.FromHistory)
	case "structured":
		return strconv.FormatBool(r.Structured)
	default:
		return ""
	}
}

// matchEqual performs case-insensitive equality.
func matchEqual(fieldValue, queryValue string) bool {
	return strings.EqualFold(fieldValue, queryValue)
}

func containsIgnoreCase(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// matchFullText searches across the visible record fields.
func matchFullText(q string, r model.Record) bool {
	needle := strings.ToLower(q)
	for _, f := range []string{r.Message, r.Level, r.Timestamp} {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
