// Package history provides an optional persistence layer for the
// notification pipeline:
//   - Notice log appends (what was sent, to whom, and whether it worked)
//   - Notifier dedup state (so notify-once suppression survives restarts)
package history
