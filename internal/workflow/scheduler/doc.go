// Package scheduler turns the stage dependency graph plus the set of published
// stages into runnable batches that respect dependency order and runtime
// constraints such as concurrency limits and manual approvals. The pipeline
// runner calls it to decide which stages to execute next without
// re-implementing filtering logic.
package scheduler
