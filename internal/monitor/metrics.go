package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "deribit",
		Subsystem: "alert_bot",
		Name:      "cycles_total",
		Help:      "The total number of completed evaluation cycles",
	})
	alertsTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "deribit",
		Subsystem: "alert_bot",
		Name:      "alerts_triggered",
		Help:      "The total number of alerts that crossed their target",
	})
	oracleFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "deribit",
		Subsystem: "alert_bot",
		Name:      "oracle_failures",
		Help:      "The total number of failed price fetches",
	})
	notifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "deribit",
		Subsystem: "alert_bot",
		Name:      "notify_failures",
		Help:      "The total number of failed alert deliveries",
	})
	activeAlerts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "deribit",
		Subsystem: "alert_bot",
		Name:      "active_alerts",
		Help:      "The number of alerts still waiting for a crossing",
	})
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(alertsTriggered)
	prometheus.MustRegister(oracleFailures)
	prometheus.MustRegister(notifyFailures)
	prometheus.MustRegister(activeAlerts)
}

// AlertsTriggeredCounter exposes the trigger counter so its value can be
// persisted across restarts alongside the chat metrics.
func AlertsTriggeredCounter() prometheus.Counter {
	return alertsTriggered
}

// CyclesTotalCounter exposes the cycle counter for persistence.
func CyclesTotalCounter() prometheus.Counter {
	return cyclesTotal
}
