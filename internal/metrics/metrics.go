package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks the latency of ledger operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ledger_operation_duration_seconds",
			Help: "Duration of ledger operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "status"}, // status: success or failed
	)

	// DonationsAccepted counts committed donations
	DonationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_donations_accepted_total",
		Help: "Number of donations accepted by the ledger",
	})

	// DonatedVolume sums accepted donation amounts in the smallest currency unit
	DonatedVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_donated_volume_total",
		Help: "Total value accepted by the ledger in the smallest currency unit",
	})
)

// RecordOperation records the duration of one ledger operation.
func RecordOperation(operation, status string, duration float64) {
	OperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordDonation records an accepted donation.
func RecordDonation(amount int64) {
	DonationsAccepted.Inc()
	DonatedVolume.Add(float64(amount))
}
