package pager

import (
	"testing"

	"github.com/go-git/go-billy/v6/memfs"

	"github.com/zqlite/zqlite-go/cipher"
	"github.com/zqlite/zqlite-go/core"
)

func cipherOpts(password string) Options {
	return Options{
		NewCipher: func(salt [saltSize]byte) (Cipher, error) {
			return cipher.New(password, salt[:])
		},
	}
}

func TestEncryptedPagerRoundTrip(t *testing.T) {
	fs := memfs.New()

	p, err := Open(fs, "enc.db", cipherOpts("hunter2"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !p.Encrypted() {
		t.Fatal("pager should report encrypted")
	}
	pageNo, _ := p.Allocate()
	if err := p.Write(pageNo, []byte("ciphertext at rest")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	p.Sync()
	p.Close()

	p2, err := Open(fs, "enc.db", cipherOpts("hunter2"))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer p2.Close()

	got, err := p2.Read(pageNo)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got[:18]) != "ciphertext at rest" {
		t.Errorf("read back %q", got[:18])
	}
}

func TestEncryptedPagerWrongPassword(t *testing.T) {
	fs := memfs.New()

	p, _ := Open(fs, "enc.db", cipherOpts("right"))
	pageNo, _ := p.Allocate()
	p.Write(pageNo, []byte("secrets"))
	p.Sync()
	p.Close()

	// wrong password is rejected at open, before any row can be produced
	_, err := Open(fs, "enc.db", cipherOpts("wrong"))
	if !core.IsKind(err, core.KindAuth) {
		t.Errorf("expected auth error, got %v", err)
	}

	// and so is opening without a password at all
	_, err = Open(fs, "enc.db", Options{})
	if !core.IsKind(err, core.KindAuth) {
		t.Errorf("expected auth error for missing password, got %v", err)
	}
}

func TestPlainFileRejectsPassword(t *testing.T) {
	fs := memfs.New()

	p, _ := Open(fs, "plain.db", Options{})
	p.Sync()
	p.Close()

	_, err := Open(fs, "plain.db", cipherOpts("unneeded"))
	if !core.IsKind(err, core.KindAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestEncryptedFileLooksRandom(t *testing.T) {
	fs := memfs.New()

	p, _ := Open(fs, "enc.db", cipherOpts("pw"))
	pageNo, _ := p.Allocate()
	plaintext := []byte("very recognizable plaintext marker")
	p.Write(pageNo, plaintext)
	p.Sync()
	p.Close()

	f, _ := fs.Open("enc.db")
	raw := make([]byte, PageSize)
	f.ReadAt(raw, int64(pageNo)*PageSize)
	f.Close()

	if string(raw[:len(plaintext)]) == string(plaintext) {
		t.Error("plaintext leaked to disk")
	}
}
