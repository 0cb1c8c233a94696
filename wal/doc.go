// Package wal implements the write-ahead log: a sidecar file of page
// after-images that makes commits atomic and crash recovery cheap.
//
// Committed writes land in the log first and reach the main file lazily,
// at checkpoint time. On open the log is replayed in order, so a crash
// after Commit loses nothing and a crash before Commit leaves no trace.
//
//	log, err := wal.Open(fs, "app.db-wal")
//	if err != nil { ... }
//
//	log.Append(pageNo, payload)
//	log.Commit() // durable once this returns
//
// Recovery:
//
//	log.Replay(func(pageNo uint32, payload []byte) error {
//		return pager.Write(pageNo, payload)
//	})
package wal
