package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Metrics are usable from package init on; Register only attaches them to a
// registry. Unregistered counters still count, which keeps tests quiet.
var (
	IdentityFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_identity_fetch_total",
		Help: "Identity fetches against upstream, by result.",
	}, []string{"result"})
	TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_token_refresh_total",
		Help: "Token refresh calls against upstream, by result.",
	}, []string{"result"})
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_logins_failure_total",
		Help: "Total number of failed logins.",
	})
	LogoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_logouts_total",
		Help: "Total number of logouts, local cleanup included.",
	})
	ActiveSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_active_sessions_gauge",
		Help: "Browser sessions currently tracked by the registry.",
	})
	WidgetLoadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_widget_load_total",
		Help: "Widget script load attempts, by result.",
	}, []string{"result"})
	WidgetHardResetTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_widget_hard_reset_total",
		Help: "Widget hard resets triggered by identity-key changes.",
	})
)

// Register attaches the gateway's custom metrics to a registry. Call once at
// startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}
	for _, c := range []prometheus.Collector{
		IdentityFetchTotal, TokenRefreshTotal,
		LoginSuccessTotal, LoginFailureTotal, LogoutTotal,
		ActiveSessionsGauge,
		WidgetLoadTotal, WidgetHardResetTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
