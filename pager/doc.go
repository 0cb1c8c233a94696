// Package pager implements the page store: fixed-size page allocation over
// a single database file.
//
// Page 0 is the file header (magic, page size, page count, free-list head,
// schema root, flags, key-derivation salt). All other pages carry a usable
// payload of Payload bytes plus a trailer holding either a blake3 checksum
// (plain files) or the AEAD nonce (encrypted files).
//
// Reads and writes pass transparently through the configured Cipher, and
// clean pages are cached in a ristretto cache. A checksum or authentication
// failure marks the pager corrupt: it is never repaired silently and every
// later call fails until the file is reopened.
//
// The package also hosts the process-wide registry of shared per-file state
// so that several connections to the same path share one pager and one
// writer lock.
package pager
