package pager

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-git/go-billy/v6"
	"github.com/zeebo/blake3"

	"github.com/zqlite/zqlite-go/core"
)

/*

Database file
─────────────────────────────────────────────
| Header (page 0) | Page 1 | Page 2 | ...   |
─────────────────────────────────────────────

Each page:
─────────────────────────────────────────────
| PAYLOAD (4048) | TRAILER (48)             |
─────────────────────────────────────────────

Plain files store a blake3 checksum of payload+pageNo in the trailer.
Encrypted files store the ciphertext (payload+16 tag) followed by the
AEAD nonce; the page number is bound in as associated data.

*/

const (
	PageSize    = 4096
	trailerSize = 48
	Payload     = PageSize - trailerSize

	// encrypted pages: ciphertext = payload + 16-byte tag, then the nonce
	cipherTagSize   = 16
	cipherNonceSize = 12

	checksumSize = 32
)

// Cipher encrypts and decrypts single pages. The page number participates
// as associated data so pages cannot be transplanted between slots.
// KeyCheck returns a commitment to the derived key, stored in the header so
// a wrong password is rejected deterministically at open time.
type Cipher interface {
	EncryptPage(pageNo uint32, payload []byte) (ciphertext, nonce []byte, err error)
	DecryptPage(pageNo uint32, ciphertext, nonce []byte) ([]byte, error)
	KeyCheck() [32]byte
}

// Store is the page access contract the storage layers build on. The
// transaction overlay implements it as well, which is how structural
// changes join a transaction's dirty set.
type Store interface {
	Allocate() (uint32, error)
	Read(pageNo uint32) ([]byte, error)
	Write(pageNo uint32, payload []byte) error
	Free(pageNo uint32) error
}

type syncer interface {
	Sync() error
}

// Pager owns the database file and hands out fixed-size page payloads.
type Pager struct {
	fs   billy.Filesystem
	file billy.File
	path string

	header header
	cipher Cipher
	cache  *ristretto.Cache[uint32, []byte]

	mu       sync.Mutex
	poisoned error // sticky corruption error
}

// Options configures Open.
type Options struct {
	// NewCipher derives the page cipher from the file's salt. The salt is
	// generated for new files and read from the header for existing ones.
	NewCipher func(salt [saltSize]byte) (Cipher, error)
	// CacheBytes bounds the clean-page cache; 0 uses a small default.
	CacheBytes int64
}

// Open opens or creates the database file at path on the given filesystem.
func Open(fs billy.Filesystem, path string, opts Options) (*Pager, error) {
	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, core.Errorf(core.KindCantOpen, "open %s: %v", path, err)
	}

	stat, err := fs.Stat(path)
	if err != nil {
		file.Close()
		return nil, core.Errorf(core.KindIO, "stat %s: %v", path, err)
	}

	cacheBytes := opts.CacheBytes
	if cacheBytes == 0 {
		cacheBytes = 4 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint32, []byte]{
		NumCounters: cacheBytes / PageSize * 10,
		MaxCost:     cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		file.Close()
		return nil, core.Errorf(core.KindInternal, "page cache: %v", err)
	}

	p := &Pager{
		fs:    fs,
		file:  file,
		path:  path,
		cache: cache,
	}

	if stat.Size() == 0 {
		if err := p.initialize(opts); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	}

	if err := p.openExisting(opts); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// initialize writes a fresh header for an empty file, deriving the cipher
// from a newly generated salt when a password was supplied.
func (p *Pager) initialize(opts Options) error {
	p.header = newHeader()
	if opts.NewCipher != nil {
		cipher, err := opts.NewCipher(p.header.salt)
		if err != nil {
			return err
		}
		p.cipher = cipher
		p.header.flags |= FlagEncrypted
		p.header.keyCheck = cipher.KeyCheck()
	}
	return p.writeHeader()
}

// openExisting validates the header and, for encrypted files, the supplied
// password against the stored key check.
func (p *Pager) openExisting(opts Options) error {
	if err := p.readHeader(); err != nil {
		return err
	}

	encrypted := p.header.flags&FlagEncrypted != 0
	switch {
	case encrypted && opts.NewCipher == nil:
		return core.NewError(core.KindAuth, "database is encrypted: password required")
	case !encrypted && opts.NewCipher != nil:
		return core.NewError(core.KindAuth, "database is not encrypted")
	case encrypted:
		cipher, err := opts.NewCipher(p.header.salt)
		if err != nil {
			return err
		}
		if cipher.KeyCheck() != p.header.keyCheck {
			return core.NewError(core.KindAuth, "incorrect password")
		}
		p.cipher = cipher
	}
	return nil
}

// Path returns the file path this pager was opened with.
func (p *Pager) Path() string { return p.path }

// Filesystem returns the filesystem the database file lives on.
func (p *Pager) Filesystem() billy.Filesystem { return p.fs }

// Encrypted reports whether the file was created with a cipher.
func (p *Pager) Encrypted() bool { return p.header.flags&FlagEncrypted != 0 }

// SchemaRoot returns the root page of the schema table, 0 if unset.
func (p *Pager) SchemaRoot() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.schemaRoot
}

// SetSchemaRoot records the schema table root in the header. The header is
// persisted on the next Sync.
func (p *Pager) SetSchemaRoot(pageNo uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.schemaRoot = pageNo
}

// PageCount returns the number of pages in the file, header included.
func (p *Pager) PageCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.pageCount
}

// Grow extends the page count through pageNo. Log replay after a crash
// can carry frames past the last synced header; the grown count is
// persisted by the caller's next Sync.
func (p *Pager) Grow(pageNo uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pageNo >= p.header.pageCount {
		p.header.pageCount = pageNo + 1
	}
}

// Salt returns the key-derivation salt stored in the header.
func (p *Pager) Salt() [saltSize]byte { return p.header.salt }

// Flag reports whether a header flag is set.
func (p *Pager) Flag(flag uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header.flags&flag != 0
}

// SetFlag sets or clears a header flag; persisted on the next Sync.
func (p *Pager) SetFlag(flag uint32, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on {
		p.header.flags |= flag
	} else {
		p.header.flags &^= flag
	}
}

// Allocate returns a usable page, reusing the free list before growing the
// file.
func (p *Pager) Allocate() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poisoned != nil {
		return 0, p.poisoned
	}

	if p.header.freelistHead != 0 {
		pageNo := p.header.freelistHead
		payload, err := p.readLocked(pageNo)
		if err != nil {
			return 0, err
		}
		p.header.freelistHead = binary.BigEndian.Uint32(payload[:4])
		return pageNo, p.writeLocked(pageNo, make([]byte, Payload))
	}

	pageNo := p.header.pageCount
	p.header.pageCount++
	if err := p.writeLocked(pageNo, make([]byte, Payload)); err != nil {
		p.header.pageCount--
		return 0, err
	}
	return pageNo, nil
}

// Read returns a copy of the page payload.
func (p *Pager) Read(pageNo uint32) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readLocked(pageNo)
}

func (p *Pager) readLocked(pageNo uint32) ([]byte, error) {
	if p.poisoned != nil {
		return nil, p.poisoned
	}
	if pageNo == 0 || pageNo >= p.header.pageCount {
		return nil, core.Errorf(core.KindRange, "page %d out of range", pageNo)
	}

	if cached, ok := p.cache.Get(pageNo); ok {
		out := make([]byte, Payload)
		copy(out, cached)
		return out, nil
	}

	raw := make([]byte, PageSize)
	if _, err := p.file.ReadAt(raw, int64(pageNo)*PageSize); err != nil {
		return nil, core.Errorf(core.KindIO, "read page %d: %v", pageNo, err)
	}

	payload, err := p.decodePage(pageNo, raw)
	if err != nil {
		// corruption is sticky: the connection must be reopened
		p.poisoned = err
		return nil, err
	}

	p.cache.Set(pageNo, payload, Payload)
	out := make([]byte, Payload)
	copy(out, payload)
	return out, nil
}

// Write stores a page payload, padding it to Payload bytes.
func (p *Pager) Write(pageNo uint32, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(pageNo, payload)
}

func (p *Pager) writeLocked(pageNo uint32, payload []byte) error {
	if p.poisoned != nil {
		return p.poisoned
	}
	if pageNo == 0 || pageNo > p.header.pageCount {
		return core.Errorf(core.KindRange, "page %d out of range", pageNo)
	}
	if len(payload) > Payload {
		return core.Errorf(core.KindTooBig, "payload %d exceeds page payload %d", len(payload), Payload)
	}

	full := make([]byte, Payload)
	copy(full, payload)

	raw, err := p.encodePage(pageNo, full)
	if err != nil {
		return err
	}
	if err := p.writeRaw(int64(pageNo)*PageSize, raw); err != nil {
		return err
	}

	p.cache.Del(pageNo)
	return nil
}

// Free links a page into the free list for reuse by Allocate.
func (p *Pager) Free(pageNo uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poisoned != nil {
		return p.poisoned
	}

	payload := make([]byte, Payload)
	binary.BigEndian.PutUint32(payload[:4], p.header.freelistHead)
	if err := p.writeLocked(pageNo, payload); err != nil {
		return err
	}
	p.header.freelistHead = pageNo
	return nil
}

// Sync persists the header and flushes the file to stable storage.
func (p *Pager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poisoned != nil {
		return p.poisoned
	}
	if err := p.writeHeader(); err != nil {
		return err
	}
	if s, ok := p.file.(syncer); ok {
		if err := s.Sync(); err != nil {
			return core.Errorf(core.KindIO, "sync %s: %v", p.path, err)
		}
	}
	return nil
}

// Close releases the file and the page cache.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil {
		p.cache.Close()
		p.cache = nil
	}
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	if err != nil {
		return core.Errorf(core.KindIO, "close %s: %v", p.path, err)
	}
	return nil
}

// Corrupt reports the sticky corruption error, if any.
func (p *Pager) Corrupt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poisoned
}

func (p *Pager) writeRaw(offset int64, raw []byte) error {
	if _, err := p.file.Seek(offset, io.SeekStart); err != nil {
		return core.Errorf(core.KindIO, "seek %s: %v", p.path, err)
	}
	if _, err := p.file.Write(raw); err != nil {
		return core.Errorf(core.KindFull, "write %s: %v", p.path, err)
	}
	return nil
}

// encodePage wraps a payload into its on-disk form.
func (p *Pager) encodePage(pageNo uint32, payload []byte) ([]byte, error) {
	raw := make([]byte, PageSize)

	if p.cipher != nil {
		ciphertext, nonce, err := p.cipher.EncryptPage(pageNo, payload)
		if err != nil {
			return nil, err
		}
		copy(raw, ciphertext)
		copy(raw[Payload+cipherTagSize:], nonce)
		return raw, nil
	}

	copy(raw, payload)
	sum := pageChecksum(pageNo, payload)
	copy(raw[Payload:], sum[:])
	return raw, nil
}

// decodePage unwraps an on-disk page, verifying its checksum or tag.
func (p *Pager) decodePage(pageNo uint32, raw []byte) ([]byte, error) {
	if p.cipher != nil {
		ciphertext := raw[:Payload+cipherTagSize]
		nonce := raw[Payload+cipherTagSize : Payload+cipherTagSize+cipherNonceSize]
		payload, err := p.cipher.DecryptPage(pageNo, ciphertext, nonce)
		if err != nil {
			// the password was verified against the header at open time,
			// so a failing tag here means the page itself is damaged
			return nil, core.Errorf(core.KindCorrupt, "page %d failed authentication", pageNo)
		}
		return payload, nil
	}

	payload := raw[:Payload]
	sum := pageChecksum(pageNo, payload)
	if string(sum[:]) != string(raw[Payload:Payload+checksumSize]) {
		return nil, core.Errorf(core.KindCorrupt, "page %d checksum mismatch", pageNo)
	}
	return payload, nil
}

func pageChecksum(pageNo uint32, payload []byte) [checksumSize]byte {
	h := blake3.New()
	var no [4]byte
	binary.BigEndian.PutUint32(no[:], pageNo)
	h.Write(no[:])
	h.Write(payload)
	var sum [checksumSize]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
