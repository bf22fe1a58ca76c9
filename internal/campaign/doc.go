// Package campaign implements the orchestration engine: the state machine
// that sequences per-recipient delivery over the chat driver, tolerates
// transient connectivity loss, enforces anti-detection pacing and produces
// an auditable run report.
//
// One engine instance allows one active run at a time (single-flight).
// Commands (Pause/Resume/Stop) arrive from the controlling context; the
// run itself lives on its own goroutine and publishes progress over the
// event bus.
package campaign
