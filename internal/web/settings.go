package web

import (
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/synset-tree/library/throttle"
)

const (
	configKeyCORSOrigins  = "settings.web.cors_allowed_origins"
	configKeyFrontendDist = "settings.web.frontend_dist"
	configKeyNoMetric     = "settings.web.disable_metric"

	configKeyRateClientPerSec = "settings.web.rate_limit.client_per_sec"
	configKeyRateClientBurst  = "settings.web.rate_limit.client_burst"
	configKeyRateTotalPerSec  = "settings.web.rate_limit.total_per_sec"
	configKeyRateTotalBurst   = "settings.web.rate_limit.total_burst"
)

// defaultCORSOrigins admits the local front-end dev server.
var defaultCORSOrigins = []string{"localhost", "127.0.0.1"}

// LoadOptionsFromConfig fills the config-driven fields of Options.
func LoadOptionsFromConfig() Options {
	origins := gconfig.Shared.GetStringSlice(configKeyCORSOrigins)
	if len(origins) == 0 {
		origins = append([]string(nil), defaultCORSOrigins...)
	}

	return Options{
		Addr:           gconfig.Shared.GetString("listen"),
		Debug:          gconfig.Shared.GetBool("debug"),
		AllowedOrigins: origins,
		FrontendDist:   gconfig.Shared.GetString(configKeyFrontendDist),
		DisableMetric:  gconfig.Shared.GetBool(configKeyNoMetric),
	}
}

// LoadThrottleConfig reads the /api rate limit.
// ok is false when settings.web.rate_limit.client_per_sec is unset or not positive.
func LoadThrottleConfig() (cfg throttle.Config, ok bool) {
	perClient := gconfig.Shared.GetInt(configKeyRateClientPerSec)
	if perClient <= 0 {
		return cfg, false
	}

	cfg.EachKeyNPerSec = perClient
	cfg.EachKeyBurst = positiveOr(gconfig.Shared.GetInt(configKeyRateClientBurst), 2*perClient)

	cfg.TotalNPerSec = positiveOr(gconfig.Shared.GetInt(configKeyRateTotalPerSec), 100*perClient)
	cfg.TotalBurst = positiveOr(gconfig.Shared.GetInt(configKeyRateTotalBurst), 2*cfg.TotalNPerSec)

	return cfg, true
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
