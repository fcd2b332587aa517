// Package storage provides the optional persistence layer of the watcher.
//
// It currently supports:
//   - Delivered-drop journal appends
//   - Dedup reservation state (so restarts don't re-deliver)
//   - Subscription registry snapshots
package storage
