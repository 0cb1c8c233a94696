package zqlite

import (
	"github.com/zqlite/zqlite-go/db"
)

// VersionString identifies this engine build.
const VersionString = "1.0.0"

// Version returns the engine version.
func Version() string {
	return VersionString
}

// Open opens or creates the database file at path.
func Open(path string) (*db.Conn, error) {
	return db.Open(path, db.Options{})
}

// OpenEncrypted opens or creates an encrypted database file. The
// password is required for every later open; a wrong one is rejected
// before any page is read.
func OpenEncrypted(path, password string) (*db.Conn, error) {
	return db.Open(path, db.Options{Password: password})
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*db.Conn, error) {
	return db.OpenMemory()
}
