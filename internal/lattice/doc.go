// Package lattice provides the beamline data model shared by every other
// vacc package.
//
// This package contains type definitions only. All other internal packages
// import lattice; lattice imports nothing internal.
//
// Key design constraints:
//   - Element is a closed sum type: the set of variants is fixed here and
//     consumers switch over it exhaustively
//   - Elements are immutable values owned by the layout collaborator
//   - Settings values are keyed by channel identifier, one record per channel
//   - Channel identifiers synthesized from naming fields go through
//     DeriveChannel, never ad hoc string formatting
package lattice
