// Package memory keeps per-session conversation history bounded.
//
// Each session owns an ordered log of turns plus a rolling summary.
// When the log exceeds its turn budget, the oldest turns are folded into
// the summary (oldest semantic content dropped first) while the most
// recent K turns are always preserved verbatim. Sessions are fully
// independent: appends to one session serialize on that session's lock
// only, never on a global lock.
package memory
