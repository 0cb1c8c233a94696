package wal

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/go-git/go-billy/v6"
	"github.com/zeebo/blake3"

	"github.com/zqlite/zqlite-go/core"
)

/*

WAL file
────────────────────────────────────
| Frame | Frame | Frame | ...      |
────────────────────────────────────

Each frame:
────────────────────────────────────────────────────────────
| LSN (8) | PAGE (4) | FLAGS (4) | LEN (4) | DATA | CRC (32) |
────────────────────────────────────────────────────────────

A frame with the commit flag set and no data marks a transaction
boundary. Replay applies frames strictly in log order and only up to the
last commit frame; a torn or corrupt tail is ignored, never applied.

*/

const (
	frameHeaderSize = 20
	checksumSize    = 32

	// frame flags
	flagCommit uint32 = 1 << 0
)

type WAL struct {
	fs   billy.Filesystem
	path string
	file billy.File

	mu        sync.Mutex
	lsn       uint64
	size      int64 // bytes written, including any uncommitted tail
	committed int64 // bytes up to and including the last commit frame
}

type syncer interface {
	Sync() error
}

// Open opens or creates the log file and scans it to recover the current
// LSN and the last committed boundary.
func Open(fs billy.Filesystem, path string) (*WAL, error) {
	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, core.Errorf(core.KindCantOpen, "open wal %s: %v", path, err)
	}

	w := &WAL{fs: fs, path: path, file: file}
	if err := w.scan(); err != nil {
		file.Close()
		return nil, err
	}

	// drop any uncommitted or torn tail left by a crash
	if w.size != w.committed {
		if err := w.file.Truncate(w.committed); err != nil {
			file.Close()
			return nil, core.Errorf(core.KindIO, "truncate wal: %v", err)
		}
		w.size = w.committed
	}

	return w, nil
}

// scan walks the log, validating checksums, and records the last LSN and
// committed offset. Scanning stops silently at the first invalid frame.
func (w *WAL) scan() error {
	offset := int64(0)
	header := make([]byte, frameHeaderSize)

	for {
		if _, err := w.file.ReadAt(header, offset); err != nil {
			break // EOF or short read: end of valid log
		}

		lsn := binary.BigEndian.Uint64(header[0:8])
		dataLen := binary.BigEndian.Uint32(header[16:20])
		flags := binary.BigEndian.Uint32(header[12:16])

		frameLen := int64(frameHeaderSize) + int64(dataLen) + checksumSize
		frame := make([]byte, frameLen)
		if _, err := w.file.ReadAt(frame, offset); err != nil {
			break
		}

		sum := blake3.Sum256(frame[:frameLen-checksumSize])
		if string(sum[:]) != string(frame[frameLen-checksumSize:]) {
			break
		}

		offset += frameLen
		w.lsn = lsn
		w.size = offset
		if flags&flagCommit != 0 {
			w.committed = offset
		}
	}

	return nil
}

// Append logs a page after-image for the in-progress transaction.
func (w *WAL) Append(pageNo uint32, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendFrame(pageNo, 0, payload)
}

// Commit appends a commit frame and forces the log to stable storage. The
// transaction is durable only once Commit returns.
func (w *WAL) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.appendFrame(0, flagCommit, nil); err != nil {
		return err
	}
	if err := w.syncLocked(); err != nil {
		return err
	}
	w.committed = w.size
	return nil
}

// Rollback discards every frame written since the last commit boundary.
func (w *WAL) Rollback() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size == w.committed {
		return nil
	}
	if err := w.file.Truncate(w.committed); err != nil {
		return core.Errorf(core.KindIO, "truncate wal: %v", err)
	}
	w.size = w.committed
	return nil
}

func (w *WAL) appendFrame(pageNo, flags uint32, payload []byte) (uint64, error) {
	w.lsn++

	frame := make([]byte, frameHeaderSize+len(payload)+checksumSize)
	binary.BigEndian.PutUint64(frame[0:8], w.lsn)
	binary.BigEndian.PutUint32(frame[8:12], pageNo)
	binary.BigEndian.PutUint32(frame[12:16], flags)
	binary.BigEndian.PutUint32(frame[16:20], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)

	sum := blake3.Sum256(frame[:frameHeaderSize+len(payload)])
	copy(frame[frameHeaderSize+len(payload):], sum[:])

	if _, err := w.file.Seek(w.size, io.SeekStart); err != nil {
		return 0, core.Errorf(core.KindIO, "seek wal: %v", err)
	}
	if _, err := w.file.Write(frame); err != nil {
		return 0, core.Errorf(core.KindFull, "append wal: %v", err)
	}
	w.size += int64(len(frame))
	return w.lsn, nil
}

// Sync forces buffered frames to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *WAL) syncLocked() error {
	if s, ok := w.file.(syncer); ok {
		if err := s.Sync(); err != nil {
			return core.Errorf(core.KindIO, "sync wal: %v", err)
		}
	}
	return nil
}

// LSN returns the last assigned log sequence number.
func (w *WAL) LSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lsn
}

// CommittedSize returns the byte length of the committed log prefix.
func (w *WAL) CommittedSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// Replay feeds every committed page after-image, in log order, to apply.
// Frames past the last commit boundary are skipped. Replay never mutates
// the log, so running it twice produces the same final state.
func (w *WAL) Replay(apply func(pageNo uint32, payload []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset := int64(0)
	header := make([]byte, frameHeaderSize)
	var pending []pendingFrame

	for offset < w.committed {
		if _, err := w.file.ReadAt(header, offset); err != nil {
			return core.Errorf(core.KindIO, "read wal: %v", err)
		}

		pageNo := binary.BigEndian.Uint32(header[8:12])
		flags := binary.BigEndian.Uint32(header[12:16])
		dataLen := binary.BigEndian.Uint32(header[16:20])

		frameLen := int64(frameHeaderSize) + int64(dataLen) + checksumSize
		frame := make([]byte, frameLen)
		if _, err := w.file.ReadAt(frame, offset); err != nil {
			return core.Errorf(core.KindIO, "read wal: %v", err)
		}
		sum := blake3.Sum256(frame[:frameLen-checksumSize])
		if string(sum[:]) != string(frame[frameLen-checksumSize:]) {
			return core.NewError(core.KindCorrupt, "wal checksum mismatch inside committed prefix")
		}

		if flags&flagCommit != 0 {
			for _, f := range pending {
				if err := apply(f.pageNo, f.payload); err != nil {
					return err
				}
			}
			pending = pending[:0]
		} else {
			payload := make([]byte, dataLen)
			copy(payload, frame[frameHeaderSize:frameHeaderSize+int64(dataLen)])
			pending = append(pending, pendingFrame{pageNo: pageNo, payload: payload})
		}

		offset += frameLen
	}

	return nil
}

type pendingFrame struct {
	pageNo  uint32
	payload []byte
}

// Checkpoint applies the committed log through apply, then truncates it.
// apply must leave the main file durable before Checkpoint returns.
func (w *WAL) Checkpoint(apply func(pageNo uint32, payload []byte) error) error {
	if err := w.Replay(apply); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return core.Errorf(core.KindIO, "truncate wal: %v", err)
	}
	w.size = 0
	w.committed = 0
	return nil
}

// Close flushes and releases the log file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.syncLocked(); err != nil {
		w.file.Close()
		w.file = nil
		return err
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return core.Errorf(core.KindIO, "close wal: %v", err)
	}
	return nil
}
