// Package channels holds the control-system view of the twin: the channel
// registry derived from a beamline layout and the in-process channel server
// that clients read from and write to.
//
// Every settable quantity maps to three channels:
//
//	<base>_CSET  read/write  commanded setpoint
//	<base>_RSET  read-only   echo of the accepted setpoint
//	<base>_RD    read-only   simulated measurement
//
// Monitors contribute one read-only RD channel per measured quantity.
//
// The Server serializes every push on a single mutex. Write handlers run
// after the lock is released, and monitor subscriptions are fed through
// unbounded queues so a slow subscriber never blocks a push.
package channels
