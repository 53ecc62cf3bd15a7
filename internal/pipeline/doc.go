// Package pipeline wires a frame source to the spray stages and an actuator.
//
// Per frame, strictly in delivery order: vegetation mask, lane reduction,
// elapsed time since the previous frame, controller update, actuator apply.
// Processor is the synchronous form driven by the caller; Run drains a
// frame.Source on the calling goroutine until its channel closes.
//
// The package owns no domain logic; it delegates to vegetation, lanes and
// actuator, and reports through monitoring.
package pipeline
