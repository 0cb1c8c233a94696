package db

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/go-git/go-billy/v6/memfs"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/pager"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	conn, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seed(t *testing.T, conn *Conn) {
	t.Helper()
	if err := conn.Execute("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	err := conn.Execute("INSERT INTO users VALUES (1, 'alice', 30), (2, 'bob', 25), (3, 'carol', 35)")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
}

func TestQueryRoundTrip(t *testing.T) {
	conn := openTestConn(t)
	seed(t, conn)

	result, err := conn.Query("SELECT id, name FROM users WHERE age > ? ORDER BY id", core.Integer(26))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.RowCount() != 2 || result.ColumnCount() != 2 {
		t.Fatalf("result %dx%d", result.RowCount(), result.ColumnCount())
	}
	if result.ColumnName(0) != "id" || result.ColumnName(1) != "name" {
		t.Errorf("columns %q %q", result.ColumnName(0), result.ColumnName(1))
	}
	if id, _ := result.GetInt(0, 0); id != 1 {
		t.Errorf("first id %d", id)
	}
	if name, _ := result.GetText(1, 1); name != "carol" {
		t.Errorf("second name %q", name)
	}
}

func TestTypedGetters(t *testing.T) {
	conn := openTestConn(t)
	if err := conn.Execute("CREATE TABLE t (id INTEGER PRIMARY KEY, score FLOAT, label TEXT)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := conn.Execute("INSERT INTO t VALUES (1, 9.5, 'x')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	result, err := conn.Query("SELECT id, score, label FROM t")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	// integers widen to real, nothing else converts
	if f, err := result.GetReal(0, 0); err != nil || f != 1.0 {
		t.Errorf("widened integer %v %v", f, err)
	}
	if _, err := result.GetInt(0, 1); !core.IsKind(err, core.KindMismatch) {
		t.Errorf("real as int: %v", err)
	}
	if _, err := result.GetText(0, 0); !core.IsKind(err, core.KindMismatch) {
		t.Errorf("int as text: %v", err)
	}
	if _, err := result.GetInt(5, 0); !core.IsKind(err, core.KindRange) {
		t.Errorf("out of range: %v", err)
	}
	if result.ColumnType(0, 1) != core.TypeReal {
		t.Errorf("column type %v", result.ColumnType(0, 1))
	}
}

func TestChangesAndLastInsertRowid(t *testing.T) {
	conn := openTestConn(t)
	if err := conn.Execute("CREATE TABLE notes (body TEXT)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := conn.Execute("INSERT INTO notes VALUES ('a'), ('b'), ('c')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if conn.Changes() != 3 {
		t.Errorf("changes %d", conn.Changes())
	}
	if conn.LastInsertRowid() != 3 {
		t.Errorf("last rowid %d", conn.LastInsertRowid())
	}

	if err := conn.Execute("DELETE FROM notes WHERE body = 'b'"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if conn.Changes() != 1 {
		t.Errorf("delete changes %d", conn.Changes())
	}
	// a delete does not disturb the recorded rowid
	if conn.LastInsertRowid() != 3 {
		t.Errorf("last rowid after delete %d", conn.LastInsertRowid())
	}
}

func TestExplicitTransaction(t *testing.T) {
	conn := openTestConn(t)
	seed(t, conn)

	if err := conn.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := conn.Execute("DELETE FROM users"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// the transaction sees its own delete
	result, _ := conn.Query("SELECT id FROM users")
	if result.RowCount() != 0 {
		t.Errorf("rows inside txn %d", result.RowCount())
	}

	if err := conn.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	result, _ = conn.Query("SELECT id FROM users")
	if result.RowCount() != 3 {
		t.Errorf("rows after rollback %d", result.RowCount())
	}

	if err := conn.Execute("BEGIN"); err != nil {
		t.Fatalf("sql begin failed: %v", err)
	}
	if err := conn.Execute("DELETE FROM users WHERE id = 1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := conn.Execute("COMMIT"); err != nil {
		t.Fatalf("sql commit failed: %v", err)
	}
	result, _ = conn.Query("SELECT id FROM users")
	if result.RowCount() != 2 {
		t.Errorf("rows after commit %d", result.RowCount())
	}
}

func TestImplicitTransactionRollsBackOnError(t *testing.T) {
	conn := openTestConn(t)
	seed(t, conn)

	// second tuple violates the primary key; the first must not stick
	err := conn.Execute("INSERT INTO users VALUES (10, 'x', 1), (1, 'dup', 2)")
	if !core.IsKind(err, core.KindConstraint) {
		t.Fatalf("expected constraint error, got %v", err)
	}
	result, _ := conn.Query("SELECT id FROM users WHERE id = 10")
	if result.RowCount() != 0 {
		t.Error("partial insert survived")
	}
}

func TestLastErrorTracking(t *testing.T) {
	conn := openTestConn(t)
	seed(t, conn)

	err := conn.Execute("SELECT FROM WHERE")
	if !core.IsKind(err, core.KindSyntax) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	if conn.ErrCode() != core.KindSyntax.Number() || conn.ErrMsg() == "" {
		t.Errorf("last error %d %q", conn.ErrCode(), conn.ErrMsg())
	}

	if err := conn.Execute("SELECT id FROM users"); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if conn.ErrCode() != 0 || conn.ErrMsg() != "" {
		t.Errorf("error not cleared: %d %q", conn.ErrCode(), conn.ErrMsg())
	}
}

func TestPrepareBindStepReset(t *testing.T) {
	conn := openTestConn(t)
	if err := conn.Execute("CREATE TABLE nums (n INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for i := 1; i <= 6; i++ {
		stmt, err := conn.Prepare("INSERT INTO nums VALUES (?)")
		if err != nil {
			t.Fatalf("prepare insert failed: %v", err)
		}
		stmt.BindInt(1, int64(i))
		if status, err := stmt.Step(); err != nil || status != StatusDone {
			t.Fatalf("insert step: %v %v", status, err)
		}
		stmt.Finalize()
	}

	stmt, err := conn.Prepare("SELECT n FROM nums WHERE n > ?")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Finalize()

	stmt.BindInt(1, 2)
	rows := 0
	for {
		status, err := stmt.Step()
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		if status == StatusDone {
			break
		}
		rows++
	}
	if rows != 4 {
		t.Errorf("first run rows %d", rows)
	}

	// reset keeps the binding and replays the same rows
	if err := stmt.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	rows = 0
	for {
		status, err := stmt.Step()
		if err != nil {
			t.Fatalf("step after reset failed: %v", err)
		}
		if status == StatusDone {
			break
		}
		if n, err := stmt.GetInt(0); err != nil || n <= 2 {
			t.Errorf("row value %d %v", n, err)
		}
		rows++
	}
	if rows != 4 {
		t.Errorf("second run rows %d", rows)
	}
}

func TestBindErrors(t *testing.T) {
	conn := openTestConn(t)
	seed(t, conn)

	stmt, err := conn.Prepare("SELECT name FROM users WHERE id = ?")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := stmt.BindInt(0, 1); !core.IsKind(err, core.KindRange) {
		t.Errorf("bind 0: %v", err)
	}
	if err := stmt.BindInt(2, 1); !core.IsKind(err, core.KindRange) {
		t.Errorf("bind 2: %v", err)
	}

	if err := stmt.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if _, err := stmt.Step(); !core.IsKind(err, core.KindUsage) {
		t.Errorf("step after finalize: %v", err)
	}
	if err := stmt.BindInt(1, 1); !core.IsKind(err, core.KindUsage) {
		t.Errorf("bind after finalize: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	fs := memfs.New()

	conn, err := Open("persist.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	seed(t, conn)
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	conn, err = Open("persist.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer conn.Close()

	result, err := conn.Query("SELECT COUNT(*) FROM users")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n, _ := result.GetInt(0, 0); n != 3 {
		t.Errorf("rows after reopen %d", n)
	}
}

func TestEncryptedConnection(t *testing.T) {
	fs := memfs.New()

	conn, err := Open("secret.db", Options{Filesystem: fs, Password: "hunter2"})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	seed(t, conn)
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := Open("secret.db", Options{Filesystem: fs, Password: "wrong"}); !core.IsKind(err, core.KindAuth) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := Open("secret.db", Options{Filesystem: fs}); !core.IsKind(err, core.KindAuth) {
		t.Fatalf("missing password: %v", err)
	}

	conn, err = Open("secret.db", Options{Filesystem: fs, Password: "hunter2"})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer conn.Close()
	result, err := conn.Query("SELECT name FROM users WHERE id = 2")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if name, _ := result.GetText(0, 0); name != "bob" {
		t.Errorf("name %q", name)
	}
}

func TestWALModePersists(t *testing.T) {
	fs := memfs.New()

	conn, err := Open("journal.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := conn.EnableWAL(); err != nil {
		t.Fatalf("enable wal failed: %v", err)
	}
	seed(t, conn)
	if err := conn.Execute("UPDATE users SET age = 40 WHERE id = 1"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	conn, err = Open("journal.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer conn.Close()
	result, err := conn.Query("SELECT age FROM users WHERE id = 1")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if age, _ := result.GetInt(0, 0); age != 40 {
		t.Errorf("age %d", age)
	}
}

func TestVacuum(t *testing.T) {
	conn := openTestConn(t)
	seed(t, conn)
	if err := conn.Execute("CREATE INDEX idx_age ON users (age)"); err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	if err := conn.Execute("DELETE FROM users WHERE id = 2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if err := conn.Execute("VACUUM"); err != nil {
		t.Fatalf("vacuum failed: %v", err)
	}

	result, err := conn.Query("SELECT name FROM users WHERE age > 20 ORDER BY name")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.RowCount() != 2 {
		t.Fatalf("rows after vacuum %d", result.RowCount())
	}
	if name, _ := result.GetText(0, 0); name != "alice" {
		t.Errorf("name %q", name)
	}
}

func TestBackupToFile(t *testing.T) {
	fs := memfs.New()
	conn, err := Open("source.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	seed(t, conn)
	if err := conn.Backup("copy.db"); err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	conn.Close()

	copied, err := Open("copy.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open copy failed: %v", err)
	}
	defer copied.Close()
	result, err := copied.Query("SELECT COUNT(*) FROM users")
	if err != nil {
		t.Fatalf("query copy failed: %v", err)
	}
	if n, _ := result.GetInt(0, 0); n != 3 {
		t.Errorf("copied rows %d", n)
	}
}

func TestJSONFunctions(t *testing.T) {
	conn := openTestConn(t)

	out, err := conn.JSONSet(`{"a":1}`, "$.b.c", core.Real(1.23456789))
	if err != nil {
		t.Fatalf("json set failed: %v", err)
	}
	typ, err := conn.JSONType(out, "$.b")
	if err != nil || typ != "object" {
		t.Errorf("type %q %v", typ, err)
	}

	conn.SetPrecision(3)
	value, err := conn.JSONExtract(out, "$.b.c")
	if err != nil {
		t.Fatalf("json extract failed: %v", err)
	}
	if value != "1.23" {
		t.Errorf("rendered %q", value)
	}

	if _, err := conn.JSONExtract(`{"a":`, "$.a"); !core.IsKind(err, core.KindSyntax) {
		t.Errorf("malformed doc: %v", err)
	}
	if _, err := conn.JSONExtract(`{"a":1}`, "$.b"); !core.IsKind(err, core.KindNotFound) {
		t.Errorf("missing path: %v", err)
	}
}

func TestCloseWithOpenTransaction(t *testing.T) {
	conn, err := OpenMemory()
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := conn.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := conn.Close(); !core.IsKind(err, core.KindUsage) {
		t.Fatalf("close with txn: %v", err)
	}
	if err := conn.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := conn.Execute("SELECT 1"); !core.IsKind(err, core.KindUsage) {
		t.Errorf("execute after close: %v", err)
	}
}

func TestUncommittedSchemaInvisibleToOtherConnections(t *testing.T) {
	fs := memfs.New()
	writer, err := Open("shared.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open writer failed: %v", err)
	}
	reader, err := Open("shared.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open reader failed: %v", err)
	}
	t.Cleanup(func() {
		reader.Close()
		writer.Close()
	})

	if err := writer.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	// enough objects to push the catalog root onto fresh pages that only
	// the writer's overlay knows about
	n := 120
	for i := 0; i < n; i++ {
		query := fmt.Sprintf("CREATE TABLE pending_%03d (id INTEGER PRIMARY KEY, name TEXT)", i)
		if err := writer.Execute(query); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	objects, err := reader.Schema()
	if err != nil {
		t.Fatalf("schema read during writer transaction failed: %v", err)
	}
	if len(objects) != 0 {
		t.Fatalf("reader sees %d uncommitted objects", len(objects))
	}
	if _, err := reader.Query("SELECT * FROM pending_000"); err == nil {
		t.Fatal("uncommitted table is queryable from another connection")
	}

	if err := writer.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	objects, err = reader.Schema()
	if err != nil {
		t.Fatalf("schema read after commit failed: %v", err)
	}
	if len(objects) != n {
		t.Errorf("reader sees %d objects after commit, want %d", len(objects), n)
	}
	if _, err := reader.Query("SELECT * FROM pending_000"); err != nil {
		t.Errorf("committed table unreadable: %v", err)
	}
}

func TestVacuumKeepsWALMode(t *testing.T) {
	fs := memfs.New()
	conn, err := Open("vacwal.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := conn.EnableWAL(); err != nil {
		t.Fatalf("enable wal failed: %v", err)
	}
	if err := conn.Execute("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for i := 1; i <= 50; i++ {
		if err := conn.Execute("INSERT INTO t VALUES (?, ?)", core.Integer(int64(i)), core.Text("row")); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	if err := conn.Execute("DELETE FROM t WHERE id > 25"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if err := conn.Vacuum(); err != nil {
		t.Fatalf("vacuum failed: %v", err)
	}
	if !conn.shared.Pager.Flag(pager.FlagWAL) {
		t.Fatal("vacuum dropped the journaling flag")
	}

	// commits after the rebuild keep going through the log
	if err := conn.Execute("INSERT INTO t VALUES (100, 'after')"); err != nil {
		t.Fatalf("insert after vacuum failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open("vacwal.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if !reopened.shared.Pager.Flag(pager.FlagWAL) {
		t.Error("journaling flag lost across reopen")
	}
	result, err := reopened.Query("SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count, _ := result.GetInt(0, 0); count != 26 {
		t.Errorf("count after reopen %d, want 26", count)
	}
}

func TestCloseReportsCheckpointFailure(t *testing.T) {
	fs := memfs.New()
	conn, err := Open("chkfail.db", Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := conn.EnableWAL(); err != nil {
		t.Fatalf("enable wal failed: %v", err)
	}
	if err := conn.Execute("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := conn.Execute("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// damage a committed frame so folding the log back into the main
	// file fails at close
	file, err := fs.OpenFile("chkfail.db-wal", os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open log failed: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := file.ReadAt(buf, 25); err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	buf[0] ^= 0xff
	if _, err := file.Seek(25, io.SeekStart); err != nil {
		t.Fatalf("seek log failed: %v", err)
	}
	if _, err := file.Write(buf); err != nil {
		t.Fatalf("write log failed: %v", err)
	}
	file.Close()

	err = conn.Close()
	if !core.IsKind(err, core.KindCorrupt) {
		t.Fatalf("close with damaged log: %v", err)
	}
	if err := conn.Execute("SELECT 1"); !core.IsKind(err, core.KindUsage) {
		t.Errorf("connection still usable after close: %v", err)
	}
}
