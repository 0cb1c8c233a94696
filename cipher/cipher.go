// Package cipher implements transparent page-level encryption.
//
// Keys are derived from a password with argon2id using the per-file salt
// stored in the plaintext header. Every page is sealed independently with
// chacha20poly1305, binding the page number in as associated data, so a
// single page can be decrypted without touching the rest of the file and a
// transplanted page fails authentication.
package cipher

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zqlite/zqlite-go/core"
)

// argon2id parameters: deliberately slow key derivation.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4
)

// PageCipher seals and opens single pages under one derived key.
type PageCipher struct {
	key      []byte
	keyCheck [32]byte
}

// New derives a page cipher from a password and the file salt.
func New(password string, salt []byte) (*PageCipher, error) {
	if password == "" {
		return nil, core.NewError(core.KindAuth, "empty password")
	}
	key := argon2.IDKey([]byte(password), salt, kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	return &PageCipher{
		key:      key,
		keyCheck: blake3.Sum256(key),
	}, nil
}

// KeyCheck returns a commitment to the derived key. The pager stores it in
// the header so a wrong password is rejected before any page is read.
func (c *PageCipher) KeyCheck() [32]byte {
	return c.keyCheck
}

// EncryptPage seals a page payload with a fresh random nonce. The returned
// ciphertext is len(payload)+16 bytes; the nonce is returned separately for
// the page trailer.
func (c *PageCipher) EncryptPage(pageNo uint32, payload []byte) ([]byte, []byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, nil, core.Errorf(core.KindInternal, "cipher init: %v", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, core.Errorf(core.KindInternal, "nonce: %v", err)
	}

	ciphertext := aead.Seal(nil, nonce, payload, pageAD(pageNo))
	return ciphertext, nonce, nil
}

// DecryptPage opens a sealed page. An authentication failure is reported
// as-is; the caller decides whether it means a bad password or damage.
func (c *PageCipher) DecryptPage(pageNo uint32, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, core.Errorf(core.KindInternal, "cipher init: %v", err)
	}

	payload, err := aead.Open(nil, nonce, ciphertext, pageAD(pageNo))
	if err != nil {
		return nil, core.Errorf(core.KindAuth, "page %d authentication failed", pageNo)
	}
	return payload, nil
}

func pageAD(pageNo uint32) []byte {
	var ad [4]byte
	binary.BigEndian.PutUint32(ad[:], pageNo)
	return ad[:]
}
