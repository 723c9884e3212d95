// Package jobs implements background tasks for the presence server.
//
// The jobs package contains periodic tasks that run independently of the
// socket and HTTP handlers.
//
// # Job Types
//
//   - StatsReporter: logs live room and layer occupancy and dropped pushes
//
// # Lifecycle
//
// Jobs start with Start and stop with Stop; both are idempotent. RunOnce runs
// a single pass synchronously, for tests or a manual trigger:
//
//	reporter := jobs.NewStatsReporter(presenceService, time.Minute)
//	reporter.Start()
//	defer reporter.Stop()
//
// Jobs log errors but never crash the process.
package jobs
