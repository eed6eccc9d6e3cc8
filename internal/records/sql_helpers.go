package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	// likeEscape is the escape character declared in every LIKE clause.
	likeEscape = `\`

	maxLoggedParamLength = 256
)

var likeEscaper = strings.NewReplacer(
	`\`, `\\`,
	`%`, `\%`,
	`_`, `\_`,
)

// escapeLike makes s match itself literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// useDollarPlaceholders reports whether the SQL dialect expects $1-style bind placeholders.
func useDollarPlaceholders(db *sql.DB) bool {
	if db == nil {
		return false
	}

	return !isSQLite(db)
}

// isSQLite reports whether db is backed by a sqlite driver.
func isSQLite(db *sql.DB) bool {
	driverName := strings.ToLower(fmt.Sprintf("%T", db.Driver()))
	return strings.Contains(driverName, "sqlite")
}

// rebindQuery rewrites question-mark placeholders into dialect-specific placeholders.
func rebindQuery(query string, dollar bool) string {
	if !dollar {
		return query
	}

	var builder strings.Builder
	builder.Grow(len(query) + 8)
	argIdx := 1
	for _, ch := range query {
		if ch == '?' {
			builder.WriteString(fmt.Sprintf("$%d", argIdx))
			argIdx++
			continue
		}
		builder.WriteRune(ch)
	}

	return builder.String()
}

// placeholders returns n comma-separated question marks.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}

	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// sanitizeLoggedParams shortens oversized string parameters before they are logged.
func sanitizeLoggedParams(params []any) []any {
	filtered := make([]any, len(params))
	for idx, param := range params {
		if value, ok := param.(string); ok && len(value) > maxLoggedParamLength {
			filtered[idx] = fmt.Sprintf("%s...<truncated:len=%d>", value[:maxLoggedParamLength], len(value))
			continue
		}
		filtered[idx] = param
	}

	return filtered
}

// queryContext executes a query after rebinding placeholders for the active dialect.
func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) rebind(query string) string {
	return rebindQuery(query, s.useDollar)
}
