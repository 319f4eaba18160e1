package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoquest_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"method", "status"})
	SolvesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoquest_solves_total",
		Help: "Committed correct answers by discovery rank bucket",
	}, []string{"rank"})
	WrongAnswersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoquest_wrong_answers_total",
		Help: "Committed wrong answer penalties",
	})
	AlreadySolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoquest_already_solved_total",
		Help: "Correct answers rejected because the team had already solved the quest",
	})
	AssignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoquest_assignments_total",
		Help: "Quest assignment attempts by result",
	}, []string{"result"})
	TxConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoquest_tx_conflicts_total",
		Help: "Transactions that lost an optimistic concurrency race",
	})
	TxRetryExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoquest_tx_retry_exhausted_total",
		Help: "Transactions abandoned after the retry bound",
	})
	ProximityWatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geoquest_proximity_watches",
		Help: "Active proximity watches",
	})
	HubDroppedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoquest_hub_dropped_events_total",
		Help: "Change events dropped for slow subscribers",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(HTTPRequestDurationMs)
	prometheus.MustRegister(SolvesTotal)
	prometheus.MustRegister(WrongAnswersTotal)
	prometheus.MustRegister(AlreadySolvedTotal)
	prometheus.MustRegister(AssignmentsTotal)
	prometheus.MustRegister(TxConflicts)
	prometheus.MustRegister(TxRetryExhausted)
	prometheus.MustRegister(ProximityWatches)
	prometheus.MustRegister(HubDroppedEvents)
}

// RankLabel buckets discovery ranks so the label set stays bounded.
func RankLabel(rank int) string {
	switch rank {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	case 4:
		return "4"
	default:
		return "5+"
	}
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
