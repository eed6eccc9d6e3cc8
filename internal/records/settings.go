package records

import (
	"fmt"
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
)

const (
	// DefaultQueryTimeout bounds a single records request when configuration is absent.
	DefaultQueryTimeout = 10 * time.Second
)

// Settings holds runtime configuration for the records service and store.
type Settings struct {
	TableName    string
	QueryTimeout time.Duration
	// CacheTTL enables the query result cache when positive.
	CacheTTL time.Duration
}

// LoadSettingsFromConfig populates Settings from the shared configuration with sensible defaults.
func LoadSettingsFromConfig() Settings {
	table := strings.TrimSpace(gconfig.S.GetString("settings.db.table"))
	if table == "" {
		table = DefaultTableName
	}

	timeoutSeconds := intFromConfig("settings.records.query_timeout_seconds", int(DefaultQueryTimeout/time.Second))
	if timeoutSeconds <= 0 {
		timeoutSeconds = int(DefaultQueryTimeout / time.Second)
	}

	cacheSeconds := intFromConfig("settings.records.cache_ttl_seconds", 0)
	if cacheSeconds < 0 {
		cacheSeconds = 0
	}

	return Settings{
		TableName:    table,
		QueryTimeout: time.Duration(timeoutSeconds) * time.Second,
		CacheTTL:     time.Duration(cacheSeconds) * time.Second,
	}
}

const (
	cacheTableSuffix   = "_cache"
	maxTableNameLength = 64
)

// CacheTableName is the kv table backing the query cache.
// Long record table names are cut so the result stays a valid table name.
func (s Settings) CacheTableName() string {
	base := s.TableName
	if limit := maxTableNameLength - len(cacheTableSuffix); len(base) > limit {
		base = base[:limit]
	}
	return base + cacheTableSuffix
}

// intFromConfig retrieves an integer configuration value with a default fallback.
func intFromConfig(key string, def int) int {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			return parsed
		}
		return def
	default:
		return def
	}
}
