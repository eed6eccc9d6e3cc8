package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/synset-tree/internal/records"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateDBConfig(get, &validationErrs)
	validateRecordsConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateDBConfig validates database connection settings.
// Postgres keys are only checked when postgres is the active driver.
func validateDBConfig(get configGetter, errs *[]string) {
	driver := driverPostgres
	if raw := get("settings.db.driver"); raw != nil {
		value, err := parseStrictString(raw)
		if err != nil {
			appendValidationError(errs, "settings.db.driver must be a string")
			return
		}
		value = strings.ToLower(strings.TrimSpace(value))
		switch value {
		case "":
		case driverPostgres, driverSQLite:
			driver = value
		default:
			appendValidationError(errs, "settings.db.driver must be one of %s, %s", driverPostgres, driverSQLite)
			return
		}
	}

	validateOptionalTableName(get, "settings.db.table", errs)

	switch driver {
	case driverPostgres:
		validateOptionalStringNonEmpty(get, "settings.db.postgres.addr", errs)
		validateOptionalStringNonEmpty(get, "settings.db.postgres.db", errs)
		validateOptionalStringNonEmpty(get, "settings.db.postgres.user", errs)
		validateOptionalIntRange(get, "settings.db.postgres.port", 1, 65535, errs)
		validateOptionalIntMin(get, "settings.db.postgres.max_open_conns", 1, errs)
		validateOptionalOneOf(get, "settings.db.postgres.sslmode", errs,
			"disable", "allow", "prefer", "require", "verify-ca", "verify-full")
	case driverSQLite:
		validateOptionalStringNonEmpty(get, "settings.db.sqlite.path", errs)
	}
}

// validateRecordsConfig validates records query settings.
func validateRecordsConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.records.query_timeout_seconds", 1, errs)
	validateOptionalIntMin(get, "settings.records.cache_ttl_seconds", 0, errs)
}

// validateWebConfig validates HTTP server settings.
func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalBool(get, "settings.web.disable_metric", errs)
	validateOptionalStringNonEmpty(get, "settings.web.frontend_dist", errs)
	for _, key := range []string{
		"settings.web.rate_limit.client_per_sec",
		"settings.web.rate_limit.client_burst",
		"settings.web.rate_limit.total_per_sec",
		"settings.web.rate_limit.total_burst",
	} {
		validateOptionalIntMin(get, key, 0, errs)
	}

	raw := get("settings.web.cors_allowed_origins")
	if raw == nil {
		return
	}
	origins, err := parseStrictStringSlice(raw)
	if err != nil {
		appendValidationError(errs, "settings.web.cors_allowed_origins must be a list of strings")
		return
	}
	for i, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			continue
		}
		if !isValidHost(origin) {
			appendValidationError(errs, "settings.web.cors_allowed_origins[%d] must be a bare domain without scheme or path", i)
		}
	}
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// validateOptionalIntRange validates an optionally configured integer key within [min, max].
// It accepts a getter, the key, the bounds, and an error collector pointer and appends validation errors.
func validateOptionalIntRange(get configGetter, key string, min int, max int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min || value > max {
		appendValidationError(errs, "%s must be within [%d, %d]", key, min, max)
	}
}

// validateOptionalOneOf validates an optionally configured string key against allowed values.
func validateOptionalOneOf(get configGetter, key string, errs *[]string, allowed ...string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	value = strings.TrimSpace(value)
	for _, candidate := range allowed {
		if value == candidate {
			return
		}
	}
	appendValidationError(errs, "%s must be one of %s", key, strings.Join(allowed, ", "))
}

// validateOptionalTableName validates an optionally configured SQL table name.
func validateOptionalTableName(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if err := records.ValidateTableName(strings.TrimSpace(value)); err != nil {
		appendValidationError(errs, "%s must be a plain SQL identifier", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// parseStrictStringSlice parses a value as a list of strings.
// YAML lists decode as []any, flags as []string.
func parseStrictStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			text, err := parseStrictString(item)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			out = append(out, text)
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported string slice type %T", value)
	}
}

// isValidHost validates a host string without scheme or path components.
// It accepts a host string and returns true when the host is syntactically acceptable.
func isValidHost(host string) bool {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "/") {
		return false
	}
	return true
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
