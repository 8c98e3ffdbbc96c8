// Package api exposes the control-system host over HTTP.
//
// Clients read channels, write setpoints, pull a msgpack snapshot of every
// value, follow value changes over a websocket, and query the cycle
// history recorded by the store. Writes go through channels.Server.Write,
// so a PUT on a setpoint channel reaches the twin exactly like any other
// control-system client write.
package api
