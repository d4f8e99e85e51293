package schedule

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorent_jobs_scheduled",
			Help: "Number of jobs scheduled or rescheduled",
		},
		[]string{"kind"},
	)

	jobsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorent_jobs_fired",
			Help: "Number of job executions started",
		},
		[]string{"kind"},
	)

	jobsSucceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorent_jobs_succeeded",
			Help: "Number of job executions that completed successfully",
		},
		[]string{"kind"},
	)

	jobsRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorent_jobs_retried",
			Help: "Number of failed job executions that were scheduled for another attempt",
		},
		[]string{"kind"},
	)

	jobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorent_jobs_failed",
			Help: "Number of jobs that exhausted their retries",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(jobsScheduled)
	prometheus.MustRegister(jobsFired)
	prometheus.MustRegister(jobsSucceeded)
	prometheus.MustRegister(jobsRetried)
	prometheus.MustRegister(jobsFailed)
}
