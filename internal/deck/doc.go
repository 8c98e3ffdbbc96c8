// Package deck generates and parses solver input decks.
//
// A deck is a fixed preamble followed by one record per beamline segment.
// Each record is a short list of numbers whose meaning is fixed by the
// element type code in field 4:
//
//	L  steps  mapsteps  type  ...  /
//
// Three entry points cover the deck life cycle:
//   - Builder.Build turns an element list plus a settings map into records
//     and the channel/record mapping tables
//   - Render and Serialize write records in the solver's text format
//   - Extract is the inverse of Build: it walks the same element list over
//     a deck text and reconstructs the settings it was built from
//
// Build and Extract are pure: they perform no I/O beyond the reader they are
// handed and never mutate the settings they receive.
package deck
