package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicescribe_registrations_total",
		Help: "Successful user registrations.",
	})

	LoginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicescribe_logins_total",
		Help: "Successful logins.",
	})

	RefreshRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicescribe_refresh_rotations_total",
		Help: "Successful refresh token rotations.",
	})

	RefreshFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicescribe_refresh_failures_total",
		Help: "Refresh attempts rejected as invalid, expired or reused.",
	})
)
