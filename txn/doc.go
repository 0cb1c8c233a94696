// Package txn serializes writes to one database file and makes them
// atomic.
//
// A Manager owns the single-writer lock of a shared pager and hands out
// one transaction at a time. While a transaction is active its page
// writes land in a memory overlay; readers of the overlay see the
// transaction's own writes, the underlying pager keeps serving the last
// committed state.
//
// Commit appends every dirty page to the write-ahead log and syncs it
// before touching the main file, so a crash between the two leaves a
// replayable log. Without a log the overlay is flushed and the file
// synced directly. Rollback drops the overlay and returns any pages the
// transaction allocated.
//
//	tx, err := manager.Begin(true)
//	... writes against tx.Store() ...
//	err = manager.Commit()
package txn
