package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track protocol volume
var (
	TopicsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voteledger_topics_created_total",
		Help: "Total number of topics successfully created",
	})

	VotesCast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voteledger_votes_cast_total",
		Help: "Total number of vote transfers confirmed",
	})

	OperationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voteledger_operations_submitted_total",
			Help: "Total number of operations submitted by kind",
		},
		[]string{"kind"},
	)
)

// Provisioning metrics - Track the get-or-create protocol
var (
	ProvisionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voteledger_provision_attempts_total",
		Help: "Total number of get-or-create calls",
	})

	ProvisionRaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voteledger_provision_races_total",
		Help: "Total number of creation attempts lost to a concurrent client",
	})

	ConfirmTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voteledger_confirm_timeouts_total",
		Help: "Total number of confirmations that ended indeterminate",
	})
)

// Performance metrics - Track latency against the ledger
var (
	ReadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voteledger_read_duration_seconds",
		Help:    "Time taken to read one account from the ledger",
		Buckets: prometheus.DefBuckets,
	})

	ConfirmDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voteledger_confirm_duration_seconds",
		Help:    "Time from submission to observed finality",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	TallyRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voteledger_tally_refresh_duration_seconds",
		Help:    "Time taken to decorate a full topic list with tallies",
		Buckets: prometheus.DefBuckets,
	})
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voteledger_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)

	TallyReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voteledger_tally_read_failures_total",
		Help: "Total number of per-topic tally reads that failed",
	})
)
