// Package engine runs the virtual accelerator: a lifecycle-managed runtime
// that repeatedly builds a solver deck from the live settings, runs the
// external beam-dynamics solver, and publishes the results as channel
// readbacks.
//
// Concurrency model:
//   - One goroutine runs the simulation cycle loop
//   - Setpoint ingestion runs on the channel server's write path, from any
//     goroutine
//   - The live settings map is guarded by a mutex; a cycle snapshots it
//     with one lock acquisition, so a write lands entirely in one cycle
//   - Channel pushes go through the Host, which serializes internally
//
// Lifecycle:
//
//	NotStarted -> Starting -> Running -> Stopping -> Stopped
//
// Start and Stop are each valid from exactly one state. Any other call is
// rejected with a LIFECYCLE *RuntimeError and leaves the state unchanged.
//
// Each Runtime owns one working directory under Config.WorkRoot holding
// the deck, the solver result files, symlinks to the auxiliary data files
// and the process log. The directory is removed on Stop.
package engine
