// Package loadtest drives synthetic backend load for a named scenario and
// reduces the outcome to per-backend results.
//
// # Overview
//
// A Coordinator runs one task per available backend for the scenario's
// duration. Each task issues reads and writes through a workload.Generator:
//
//   - read_heavy, write_heavy and balanced mixes run a paced steady loop
//     that draws a read with the mix's read ratio.
//   - burst_load fires BurstIntensity concurrent operations per round and
//     waits for the round to finish before starting the next one.
//
// # Quick Start
//
//	sc, _ := registry.Lookup("balanced", config.Override{Duration: "30s"})
//	coord := loadtest.NewCoordinator(loadtest.CoordinatorConfig{}, logger, nil)
//	store := loadtest.NewStore()
//	results := coord.Run(ctx, sc, gens, store)
//
// # Timeouts and Cancellation
//
// Operations run under a per-operation timeout detached from the caller's
// cancellation. Cancelling ctx stops new operations from starting; an
// operation already in flight finishes and is recorded. A successful
// operation that exceeds the timeout is recorded as a TimeoutError.
//
// # Results
//
// Summarize reduces raw OperationResults to a TestResult:
//
//   - operation counts, split by outcome and by read/write
//   - OperationsPerSecond over the task's wall time
//   - average, p95, p99 and max latency in seconds over successful operations
//   - ErrorRate as failed over total, zero when nothing ran
//
// A backend whose task fails outright (for example a panicking generator)
// produces no result. Store.Exclude records why.
package loadtest
