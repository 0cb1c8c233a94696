package pager

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/zqlite/zqlite-go/core"
)

/*

Header page (page 0, never encrypted)
──────────────────────────────────────────────────────────────
| MAGIC (16) | VERSION (2) | PAGESIZE (4) | PAGECOUNT (4)    |
| FREELIST (4) | SCHEMAROOT (4) | FLAGS (4) | SALT (16)      |
| KEYCHECK (32) | ... zero ... | CHECKSUM (32)               |
──────────────────────────────────────────────────────────────

*/

const (
	magic         = "zqlite format 1\x00"
	formatVersion = 1
	saltSize      = 16

	// header flags
	FlagEncrypted uint32 = 1 << 0
	FlagWAL       uint32 = 1 << 1
)

const (
	offMagic    = 0
	offVersion  = 16
	offPageSize = 18
	offCount    = 22
	offFreelist = 26
	offRoot     = 30
	offFlags    = 34
	offSalt     = 38
	offKeyCheck = 54
	offChecksum = PageSize - checksumSize
)

type header struct {
	pageCount    uint32
	freelistHead uint32
	schemaRoot   uint32
	flags        uint32
	salt         [saltSize]byte
	keyCheck     [32]byte
}

func newHeader() header {
	h := header{pageCount: 1}
	if _, err := rand.Read(h.salt[:]); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return h
}

func (p *Pager) writeHeader() error {
	raw := make([]byte, PageSize)
	copy(raw[offMagic:], magic)
	binary.BigEndian.PutUint16(raw[offVersion:], formatVersion)
	binary.BigEndian.PutUint32(raw[offPageSize:], PageSize)
	binary.BigEndian.PutUint32(raw[offCount:], p.header.pageCount)
	binary.BigEndian.PutUint32(raw[offFreelist:], p.header.freelistHead)
	binary.BigEndian.PutUint32(raw[offRoot:], p.header.schemaRoot)
	binary.BigEndian.PutUint32(raw[offFlags:], p.header.flags)
	copy(raw[offSalt:], p.header.salt[:])
	copy(raw[offKeyCheck:], p.header.keyCheck[:])

	sum := blake3.Sum256(raw[:offChecksum])
	copy(raw[offChecksum:], sum[:])

	return p.writeRaw(0, raw)
}

func (p *Pager) readHeader() error {
	raw := make([]byte, PageSize)
	if _, err := p.file.ReadAt(raw, 0); err != nil {
		return core.Errorf(core.KindIO, "read header: %v", err)
	}

	if string(raw[offMagic:offMagic+len(magic)]) != magic {
		return core.NewError(core.KindNotADB, "file is not a zqlite database")
	}
	sum := blake3.Sum256(raw[:offChecksum])
	if string(sum[:]) != string(raw[offChecksum:]) {
		return core.NewError(core.KindCorrupt, "header checksum mismatch")
	}
	if v := binary.BigEndian.Uint16(raw[offVersion:]); v != formatVersion {
		return core.Errorf(core.KindNotADB, "unsupported format version %d", v)
	}
	if ps := binary.BigEndian.Uint32(raw[offPageSize:]); ps != PageSize {
		return core.Errorf(core.KindNotADB, "unsupported page size %d", ps)
	}

	p.header.pageCount = binary.BigEndian.Uint32(raw[offCount:])
	p.header.freelistHead = binary.BigEndian.Uint32(raw[offFreelist:])
	p.header.schemaRoot = binary.BigEndian.Uint32(raw[offRoot:])
	p.header.flags = binary.BigEndian.Uint32(raw[offFlags:])
	copy(p.header.salt[:], raw[offSalt:offSalt+saltSize])
	copy(p.header.keyCheck[:], raw[offKeyCheck:offKeyCheck+32])
	return nil
}
