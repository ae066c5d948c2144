package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_reservation_fetches_total",
		Help: "Total number of authoritative reservation fetches.",
	}, []string{"trigger"})

	pushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_reservation_pushes_total",
		Help: "Total number of reservation upsert batches pushed upstream.",
	}, []string{"outcome"})

	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_change_flag_polls_total",
		Help: "Total number of change-flag polls, by whether the flag was set.",
	}, []string{"changed"})

	renewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_credential_renewals_total",
		Help: "Total number of credential renewal attempts.",
	}, []string{"outcome"})
)

// RecordFetch counts one authoritative reservation fetch by trigger
// (initial, poll, broadcast, visibility, date, push).
func RecordFetch(trigger string) {
	fetchesTotal.WithLabelValues(trigger).Inc()
}

func RecordPush(outcome string) {
	pushesTotal.WithLabelValues(outcome).Inc()
}

func RecordPoll(changed bool) {
	label := "0"
	if changed {
		label = "1"
	}
	pollsTotal.WithLabelValues(label).Inc()
}

func RecordRenewal(outcome string) {
	renewalsTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
