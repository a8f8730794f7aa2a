// Package scheduler is the task engine at the heart of vesper: it owns the
// set of registered jobs, watches the clock, and calls back into the command
// processor when a job is due.
//
// # Model
//
// A job pairs a caller-chosen id, an opaque command string, and a trigger
// (see vesper/internal/trigger). Ids are upserted: re-adding an existing id
// atomically replaces the prior job. The engine exclusively owns the job set;
// listings return copies.
//
// # Execution
//
// A single background timing loop detects due jobs once per tick and hands
// fires to a worker pool, so one slow command cannot delay detection of the
// others. A fire that overlaps the job's still-running previous run is
// skipped (and the schedule still advances). Callback errors are logged,
// recorded in run history, and contained per job; a failing job keeps
// retrying on its own schedule.
//
// # Lifecycle
//
// Job operations are only valid while the engine is running. Stop() halts
// the loop within one tick and discards the active job set; nothing persists
// across a stop/start toggle. Run history may optionally be persisted by a
// bus subscriber (see vesper/internal/history).
package scheduler
