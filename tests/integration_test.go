package tests

import (
	"io"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"

	"github.com/zqlite/zqlite-go"
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/db"
)

// TestFunc is the signature for test functions that work with any backing store
type TestFunc func(t *testing.T, conn *db.Conn)

// runWithBothStores runs a test function against an in-memory database
// and a file-backed one.
func runWithBothStores(t *testing.T, testFunc TestFunc) {
	t.Run("Memory", func(t *testing.T) {
		conn, err := zqlite.OpenMemory()
		if err != nil {
			t.Fatalf("Failed to open in-memory database: %v", err)
		}
		defer conn.Close()
		testFunc(t, conn)
	})

	t.Run("File", func(t *testing.T) {
		conn, err := zqlite.Open(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("Failed to open file database: %v", err)
		}
		defer conn.Close()
		testFunc(t, conn)
	})
}

// TestIntegrationWorkflow tests a complete database workflow
func TestIntegrationWorkflow(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {

		err := conn.Execute("CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT, department TEXT, salary INTEGER)")
		if err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}

		err = conn.Execute("CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT)")
		if err != nil {
			t.Fatalf("Failed to create departments table: %v", err)
		}

		employees := []string{
			"INSERT INTO employees (id, name, department, salary) VALUES (1, 'Alice', 'Engineering', 80000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (2, 'Bob', 'Engineering', 75000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (3, 'Charlie', 'Sales', 60000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (4, 'Diana', 'Marketing', 65000)",
			"INSERT INTO employees (id, name, department, salary) VALUES (5, 'Eve', 'Engineering', 90000)",
		}
		for _, query := range employees {
			if err := conn.Execute(query); err != nil {
				t.Fatalf("Failed to insert: %v", err)
			}
		}

		departments := []string{
			"INSERT INTO departments (id, name) VALUES (1, 'Engineering')",
			"INSERT INTO departments (id, name) VALUES (2, 'Sales')",
			"INSERT INTO departments (id, name) VALUES (3, 'Marketing')",
		}
		for _, query := range departments {
			if err := conn.Execute(query); err != nil {
				t.Fatalf("Failed to insert department: %v", err)
			}
		}

		// Verify count
		result, err := conn.Query("SELECT COUNT(*) FROM employees")
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count, _ := result.GetInt(0, 0); count != 5 {
			t.Errorf("Expected 5 employees, got %d", count)
		}

		// SELECT with ORDER BY and LIMIT
		result, err = conn.Query("SELECT * FROM employees ORDER BY salary DESC LIMIT 3")
		if err != nil {
			t.Fatalf("Failed to select with ORDER BY: %v", err)
		}
		if result.RowCount() != 3 {
			t.Errorf("Expected 3 records with LIMIT 3, got %d", result.RowCount())
		}

		// WHERE with comparison
		result, err = conn.Query("SELECT * FROM employees WHERE salary > 70000")
		if err != nil {
			t.Fatalf("Failed to select with WHERE: %v", err)
		}
		if result.RowCount() != 3 {
			t.Errorf("Expected 3 employees with salary > 70000, got %d", result.RowCount())
		}

		// UPDATE
		if err := conn.Execute("UPDATE employees SET salary = 95000 WHERE id = 5"); err != nil {
			t.Fatalf("Failed to update: %v", err)
		}
		result, err = conn.Query("SELECT salary FROM employees WHERE id = 5")
		if err != nil {
			t.Fatalf("Failed to verify update: %v", err)
		}
		if salary, _ := result.GetInt(0, 0); salary != 95000 {
			t.Errorf("Expected updated salary 95000, got %d", salary)
		}

		// DELETE
		if err := conn.Execute("DELETE FROM employees WHERE id = 3"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		result, err = conn.Query("SELECT COUNT(*) FROM employees")
		if err != nil {
			t.Fatalf("Failed to count after delete: %v", err)
		}
		if count, _ := result.GetInt(0, 0); count != 4 {
			t.Errorf("Expected 4 employees after delete, got %d", count)
		}
	})
}

// TestIntegrationScanOrder verifies rows come back in primary-key order
// regardless of insertion order.
func TestIntegrationScanOrder(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {
		conn.Execute("CREATE TABLE ordered (id INTEGER PRIMARY KEY, label TEXT)")

		inserted := []int{7, 2, 9, 1, 5, 3, 8, 4, 6}
		for _, id := range inserted {
			conn.Execute("INSERT INTO ordered (id, label) VALUES (" +
				strconv.Itoa(id) + ", 'n" + strconv.Itoa(id) + "')")
		}

		result, err := conn.Query("SELECT id FROM ordered")
		if err != nil {
			t.Fatalf("Failed to select: %v", err)
		}
		if result.RowCount() != len(inserted) {
			t.Fatalf("Expected %d rows, got %d", len(inserted), result.RowCount())
		}
		for row := 0; row < result.RowCount(); row++ {
			id, _ := result.GetInt(row, 0)
			if id != int64(row+1) {
				t.Fatalf("Row %d: expected id %d, got %d", row, row+1, id)
			}
		}
	})
}

// TestIntegrationAggregates tests aggregate functions
func TestIntegrationAggregates(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {

		conn.Execute("CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT, amount INTEGER, region TEXT)")

		orders := []string{
			"INSERT INTO orders (id, customer, amount, region) VALUES (1, 'Acme', 1000, 'East')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (2, 'Beta', 2000, 'West')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (3, 'Acme', 1500, 'East')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (4, 'Gamma', 3000, 'West')",
			"INSERT INTO orders (id, customer, amount, region) VALUES (5, 'Beta', 500, 'East')",
		}
		for _, query := range orders {
			conn.Execute(query)
		}

		result, err := conn.Query("SELECT SUM(amount) FROM orders")
		if err != nil {
			t.Fatalf("Failed to execute SUM: %v", err)
		}
		if sum, _ := result.GetInt(0, 0); sum != 8000 {
			t.Errorf("Expected SUM of 8000, got %d", sum)
		}

		result, err = conn.Query("SELECT AVG(amount) FROM orders")
		if err != nil {
			t.Fatalf("Failed to execute AVG: %v", err)
		}
		if avg, _ := result.GetReal(0, 0); avg != 1600 {
			t.Errorf("Expected AVG of 1600, got %v", avg)
		}

		result, err = conn.Query("SELECT MIN(amount) FROM orders")
		if err != nil {
			t.Fatalf("Failed to execute MIN: %v", err)
		}
		if min, _ := result.GetInt(0, 0); min != 500 {
			t.Errorf("Expected MIN of 500, got %d", min)
		}

		result, err = conn.Query("SELECT MAX(amount) FROM orders")
		if err != nil {
			t.Fatalf("Failed to execute MAX: %v", err)
		}
		if max, _ := result.GetInt(0, 0); max != 3000 {
			t.Errorf("Expected MAX of 3000, got %d", max)
		}

		// GROUP BY
		result, err = conn.Query("SELECT region, SUM(amount) FROM orders GROUP BY region")
		if err != nil {
			t.Fatalf("Failed to execute GROUP BY: %v", err)
		}
		if result.RowCount() != 2 {
			t.Fatalf("Expected 2 groups, got %d", result.RowCount())
		}
		totals := map[string]int64{}
		for row := 0; row < result.RowCount(); row++ {
			region, _ := result.GetText(row, 0)
			total, _ := result.GetInt(row, 1)
			totals[region] = total
		}
		if totals["East"] != 3000 || totals["West"] != 5000 {
			t.Errorf("Unexpected group totals: %v", totals)
		}
	})
}

// TestIntegrationWhereOperators tests various WHERE operators
func TestIntegrationWhereOperators(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {

		conn.Execute("CREATE TABLE nums (id INTEGER PRIMARY KEY, value INTEGER)")

		for i := 1; i <= 10; i++ {
			conn.Execute("INSERT INTO nums (id, value) VALUES (" +
				strconv.Itoa(i) + ", " + strconv.Itoa(i*10) + ")")
		}

		tests := []struct {
			where    string
			expected int
		}{
			{"value > 50", 5},
			{"value >= 50", 6},
			{"value < 50", 4},
			{"value <= 50", 5},
			{"value = 50", 1},
			{"value != 50", 9},
			{"value > 30 AND value < 70", 3},
			{"value < 30 OR value > 80", 4},
		}

		for _, test := range tests {
			result, err := conn.Query("SELECT * FROM nums WHERE " + test.where)
			if err != nil {
				t.Fatalf("Failed to execute WHERE %s: %v", test.where, err)
			}
			if result.RowCount() != test.expected {
				t.Errorf("WHERE %s: expected %d rows, got %d", test.where, test.expected, result.RowCount())
			}
		}
	})
}

// TestIntegrationInOperator tests IN and LIKE operators
func TestIntegrationInOperator(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {

		conn.Execute("CREATE TABLE items (id INTEGER PRIMARY KEY, status TEXT, category TEXT)")

		conn.Execute("INSERT INTO items (id, status, category) VALUES (1, 'active', 'A')")
		conn.Execute("INSERT INTO items (id, status, category) VALUES (2, 'pending', 'B')")
		conn.Execute("INSERT INTO items (id, status, category) VALUES (3, 'active', 'C')")
		conn.Execute("INSERT INTO items (id, status, category) VALUES (4, 'archived', 'A')")
		conn.Execute("INSERT INTO items (id, status, category) VALUES (5, 'pending', 'B')")

		tests := []struct {
			where    string
			expected int
		}{
			{"status IN ('active', 'pending')", 4},
			{"status IN ('active')", 2},
			{"status IN ('archived')", 1},
			{"category IN ('A', 'B')", 4},
			{"id IN (1, 3, 5)", 3},
			{"status NOT IN ('archived')", 4},
			{"status LIKE 'a%'", 3},
			{"status LIKE '%ing'", 2},
			{"status LIKE '_ctive'", 2},
		}

		for _, test := range tests {
			result, err := conn.Query("SELECT * FROM items WHERE " + test.where)
			if err != nil {
				t.Fatalf("Failed to execute WHERE %s: %v", test.where, err)
			}
			if result.RowCount() != test.expected {
				t.Errorf("WHERE %s: expected %d rows, got %d", test.where, test.expected, result.RowCount())
			}
		}
	})
}

// TestIntegrationOffsetLimit tests OFFSET and LIMIT
func TestIntegrationOffsetLimit(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {

		conn.Execute("CREATE TABLE pages (id INTEGER PRIMARY KEY, name TEXT)")

		for i := 1; i <= 20; i++ {
			conn.Execute("INSERT INTO pages (id, name) VALUES (" +
				strconv.Itoa(i) + ", 'Item" + strconv.Itoa(i) + "')")
		}

		result, err := conn.Query("SELECT * FROM pages LIMIT 5")
		if err != nil {
			t.Fatalf("Failed LIMIT: %v", err)
		}
		if result.RowCount() != 5 {
			t.Error("LIMIT 5 should return 5 rows")
		}

		result, err = conn.Query("SELECT * FROM pages LIMIT 5 OFFSET 15")
		if err != nil {
			t.Fatalf("Failed OFFSET: %v", err)
		}
		if result.RowCount() != 5 {
			t.Error("LIMIT 5 OFFSET 15 should return 5 rows")
		}

		result, err = conn.Query("SELECT * FROM pages LIMIT 5 OFFSET 100")
		if err != nil {
			t.Fatalf("Failed large OFFSET: %v", err)
		}
		if result.RowCount() != 0 {
			t.Error("OFFSET beyond data should return 0 rows")
		}
	})
}

// TestIntegrationJoins tests INNER and LEFT joins
func TestIntegrationJoins(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {
		conn.Execute("CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)")
		conn.Execute("CREATE TABLE books (id INTEGER PRIMARY KEY, author_id INTEGER, title TEXT)")

		conn.Execute("INSERT INTO authors (id, name) VALUES (1, 'Ann'), (2, 'Ben'), (3, 'Cy')")
		conn.Execute("INSERT INTO books (id, author_id, title) VALUES (1, 1, 'First'), (2, 1, 'Second'), (3, 2, 'Third')")

		result, err := conn.Query("SELECT a.name, b.title FROM authors a INNER JOIN books b ON a.id = b.author_id")
		if err != nil {
			t.Fatalf("INNER JOIN failed: %v", err)
		}
		if result.RowCount() != 3 {
			t.Errorf("Expected 3 joined rows, got %d", result.RowCount())
		}

		result, err = conn.Query("SELECT a.name, b.title FROM authors a LEFT JOIN books b ON a.id = b.author_id")
		if err != nil {
			t.Fatalf("LEFT JOIN failed: %v", err)
		}
		if result.RowCount() != 4 {
			t.Errorf("Expected 4 rows with LEFT JOIN padding, got %d", result.RowCount())
		}

		// Cy has no books; their title cell is NULL
		nullPadded := 0
		for row := 0; row < result.RowCount(); row++ {
			if result.IsNull(row, 1) {
				nullPadded++
			}
		}
		if nullPadded != 1 {
			t.Errorf("Expected 1 NULL-padded row, got %d", nullPadded)
		}
	})
}

// TestIntegrationIndexes tests secondary index creation and uniqueness
func TestIntegrationIndexes(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {
		conn.Execute("CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT)")
		conn.Execute("INSERT INTO users (id, email) VALUES (1, 'a@x.com'), (2, 'b@x.com')")

		if err := conn.Execute("CREATE UNIQUE INDEX idx_users_email ON users (email)"); err != nil {
			t.Fatalf("CREATE UNIQUE INDEX failed: %v", err)
		}

		// Duplicate violates the unique index
		if err := conn.Execute("INSERT INTO users (id, email) VALUES (3, 'a@x.com')"); err == nil {
			t.Error("Expected unique index violation")
		}

		// Lookup through the index
		result, err := conn.Query("SELECT id FROM users WHERE email = 'b@x.com'")
		if err != nil {
			t.Fatalf("Index lookup failed: %v", err)
		}
		if id, _ := result.GetInt(0, 0); id != 2 {
			t.Errorf("Expected id 2 via index, got %d", id)
		}

		if err := conn.Execute("DROP INDEX idx_users_email"); err != nil {
			t.Fatalf("DROP INDEX failed: %v", err)
		}

		// Duplicate is fine once the index is gone
		if err := conn.Execute("INSERT INTO users (id, email) VALUES (3, 'a@x.com')"); err != nil {
			t.Errorf("Insert after DROP INDEX failed: %v", err)
		}
	})
}

// TestIntegrationTransactions tests BEGIN/COMMIT/ROLLBACK semantics
func TestIntegrationTransactions(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {
		conn.Execute("CREATE TABLE ledger (id INTEGER PRIMARY KEY, amount INTEGER)")

		// Rolled-back work disappears
		if err := conn.Execute("BEGIN"); err != nil {
			t.Fatalf("BEGIN failed: %v", err)
		}
		conn.Execute("INSERT INTO ledger (id, amount) VALUES (1, 100)")
		if err := conn.Execute("ROLLBACK"); err != nil {
			t.Fatalf("ROLLBACK failed: %v", err)
		}

		result, _ := conn.Query("SELECT COUNT(*) FROM ledger")
		if count, _ := result.GetInt(0, 0); count != 0 {
			t.Errorf("Expected 0 rows after rollback, got %d", count)
		}

		// Committed work stays
		conn.Execute("BEGIN")
		conn.Execute("INSERT INTO ledger (id, amount) VALUES (1, 100)")
		conn.Execute("INSERT INTO ledger (id, amount) VALUES (2, 200)")
		if err := conn.Execute("COMMIT"); err != nil {
			t.Fatalf("COMMIT failed: %v", err)
		}

		result, _ = conn.Query("SELECT COUNT(*) FROM ledger")
		if count, _ := result.GetInt(0, 0); count != 2 {
			t.Errorf("Expected 2 rows after commit, got %d", count)
		}

		// A failing statement inside an implicit transaction leaves no trace
		err := conn.Execute("INSERT INTO ledger (id, amount) VALUES (3, 300), (1, 999)")
		if err == nil {
			t.Fatal("Expected primary key conflict")
		}
		result, _ = conn.Query("SELECT COUNT(*) FROM ledger")
		if count, _ := result.GetInt(0, 0); count != 2 {
			t.Errorf("Expected failed statement to roll back fully, got %d rows", count)
		}
	})
}

// TestIntegrationJSON tests the JSON path functions round trip
func TestIntegrationJSON(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {
		doc, err := conn.JSONSet(`{"user":{"name":"alice"}}`, "$.user.age", core.Integer(30))
		if err != nil {
			t.Fatalf("JSONSet failed: %v", err)
		}

		extracted, err := conn.JSONExtract(doc, "$.user.age")
		if err != nil {
			t.Fatalf("JSONExtract failed: %v", err)
		}
		if extracted != "30" {
			t.Errorf("Expected extracted 30, got %s", extracted)
		}

		typ, err := conn.JSONType(doc, "$.user.name")
		if err != nil {
			t.Fatalf("JSONType failed: %v", err)
		}
		if typ != "string" {
			t.Errorf("Expected type string, got %s", typ)
		}
	})
}

// TestIntegrationPreparedStatements tests the prepare/bind/step loop
func TestIntegrationPreparedStatements(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {
		conn.Execute("CREATE TABLE measurements (id INTEGER PRIMARY KEY, sensor TEXT, reading REAL)")

		insert, err := conn.Prepare("INSERT INTO measurements (id, sensor, reading) VALUES (?, ?, ?)")
		if err != nil {
			t.Fatalf("Prepare failed: %v", err)
		}
		for i := 1; i <= 4; i++ {
			insert.BindInt(1, int64(i))
			insert.BindText(2, "sensor-"+strconv.Itoa(i%2))
			insert.BindReal(3, float64(i)*1.5)
			if _, err := insert.Step(); err != nil {
				t.Fatalf("Insert step %d failed: %v", i, err)
			}
			if err := insert.Reset(); err != nil {
				t.Fatalf("Reset failed: %v", err)
			}
		}
		insert.Finalize()

		query, err := conn.Prepare("SELECT id, reading FROM measurements WHERE sensor = ?")
		if err != nil {
			t.Fatalf("Prepare select failed: %v", err)
		}
		defer query.Finalize()

		query.BindText(1, "sensor-1")
		rows := 0
		for {
			status, err := query.Step()
			if err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			if status == db.StatusDone {
				break
			}
			rows++
		}
		if rows != 2 {
			t.Errorf("Expected 2 rows for sensor-1, got %d", rows)
		}

		// Reset and run again with the other bind
		if err := query.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		query.BindText(1, "sensor-0")
		rows = 0
		for {
			status, err := query.Step()
			if err != nil {
				t.Fatalf("Step after reset failed: %v", err)
			}
			if status == db.StatusDone {
				break
			}
			rows++
		}
		if rows != 2 {
			t.Errorf("Expected 2 rows for sensor-0, got %d", rows)
		}
	})
}

// TestIntegrationErrorHandling tests error cases
func TestIntegrationErrorHandling(t *testing.T) {
	runWithBothStores(t, func(t *testing.T, conn *db.Conn) {

		conn.Execute("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")

		if err := conn.Execute("SELECT * FROM nonexistent"); err == nil {
			t.Error("Expected error for non-existent table")
		}

		if err := conn.Execute("SELEKT * FROM users"); err == nil {
			t.Error("Expected error for syntax error")
		}

		if conn.ErrCode() == 0 {
			t.Error("Expected ErrCode to record the failure")
		}
		if conn.ErrMsg() == "" {
			t.Error("Expected ErrMsg to record the failure")
		}
	})
}

// ============================================================================
// FILE PERSISTENCE TESTS
// ============================================================================

// TestFilePersistenceReopen tests that data persists after reopening the database
func TestFilePersistenceReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	// First session: create and populate
	conn1, err := zqlite.Open(path)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	conn1.Execute("CREATE TABLE data (id INTEGER PRIMARY KEY, val TEXT)")
	conn1.Execute("INSERT INTO data (id, val) VALUES (1, 'hello')")
	conn1.Execute("INSERT INTO data (id, val) VALUES (2, 'world')")
	if err := conn1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Second session: reopen and verify
	conn2, err := zqlite.Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer conn2.Close()

	result, err := conn2.Query("SELECT * FROM data")
	if err != nil {
		t.Fatalf("Failed to read persisted data: %v", err)
	}
	if result.RowCount() != 2 {
		t.Errorf("Expected 2 persisted rows, got %d", result.RowCount())
	}
}

// TestEncryptedWrongPassword verifies a wrong password is rejected on open
func TestEncryptedWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.db")

	conn1, err := zqlite.OpenEncrypted(path, "correct horse")
	if err != nil {
		t.Fatalf("Failed to open encrypted: %v", err)
	}
	conn1.Execute("CREATE TABLE secrets (id INTEGER PRIMARY KEY, val TEXT)")
	conn1.Execute("INSERT INTO secrets (id, val) VALUES (1, 'classified')")
	conn1.Close()

	if _, err := zqlite.OpenEncrypted(path, "battery staple"); err == nil {
		t.Fatal("Expected wrong password to be rejected")
	}

	if _, err := zqlite.Open(path); err == nil {
		t.Fatal("Expected missing password to be rejected")
	}

	// The right password still works
	conn2, err := zqlite.OpenEncrypted(path, "correct horse")
	if err != nil {
		t.Fatalf("Failed to reopen with correct password: %v", err)
	}
	defer conn2.Close()

	result, err := conn2.Query("SELECT val FROM secrets WHERE id = 1")
	if err != nil {
		t.Fatalf("Failed to read encrypted data: %v", err)
	}
	if val, _ := result.GetText(0, 0); val != "classified" {
		t.Errorf("Expected 'classified', got %s", val)
	}
}

// TestWALModePersistence verifies WAL mode survives reopen and commits
// are durable across sessions.
func TestWALModePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	conn1, err := zqlite.Open(path)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if err := conn1.EnableWAL(); err != nil {
		t.Fatalf("EnableWAL failed: %v", err)
	}
	conn1.Execute("CREATE TABLE journal (id INTEGER PRIMARY KEY, entry TEXT)")
	conn1.Execute("INSERT INTO journal (id, entry) VALUES (1, 'first')")
	conn1.Close()

	conn2, err := zqlite.Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer conn2.Close()

	result, err := conn2.Query("SELECT COUNT(*) FROM journal")
	if err != nil {
		t.Fatalf("Failed to read after reopen: %v", err)
	}
	if count, _ := result.GetInt(0, 0); count != 1 {
		t.Errorf("Expected 1 row after WAL reopen, got %d", count)
	}
}

// TestWALCrashRecovery simulates a crash by snapshotting the database
// file and its write-ahead log mid-session, then recovering from the
// copies. Recovery replays committed frames and is idempotent: opening
// the same snapshot twice yields the same rows.
func TestWALCrashRecovery(t *testing.T) {
	fs := memfs.New()
	conn, err := db.Open("crash.db", db.Options{Filesystem: fs})
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if err := conn.EnableWAL(); err != nil {
		t.Fatalf("EnableWAL failed: %v", err)
	}
	conn.Execute("CREATE TABLE events (id INTEGER PRIMARY KEY, kind TEXT)")
	conn.Execute("INSERT INTO events (id, kind) VALUES (1, 'created')")
	conn.Execute("INSERT INTO events (id, kind) VALUES (2, 'updated')")

	// Snapshot both files while the connection is live: committed frames
	// sit in the log, no checkpoint has run.
	snapshots := make([]billy.Filesystem, 2)
	for i := range snapshots {
		snapshots[i] = memfs.New()
		copyFile(t, fs, snapshots[i], "crash.db")
		copyFile(t, fs, snapshots[i], "crash.db-wal")
	}
	conn.Close()

	for attempt, snapshot := range snapshots {
		recovered, err := db.Open("crash.db", db.Options{Filesystem: snapshot})
		if err != nil {
			t.Fatalf("Recovery open %d failed: %v", attempt, err)
		}

		result, err := recovered.Query("SELECT COUNT(*) FROM events")
		if err != nil {
			t.Fatalf("Query after recovery %d failed: %v", attempt, err)
		}
		if count, _ := result.GetInt(0, 0); count != 2 {
			t.Errorf("Recovery %d: expected 2 rows, got %d", attempt, count)
		}
		recovered.Close()
	}
}

func copyFile(t *testing.T, from, to billy.Filesystem, name string) {
	t.Helper()
	src, err := from.Open(name)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", name, err)
	}
	defer src.Close()
	dst, err := to.Create(name)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		t.Fatalf("Failed to copy %s: %v", name, err)
	}
}

// TestVacuumReclaimsSpace verifies VACUUM keeps data intact
func TestVacuumReclaimsSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compact.db")

	conn, err := zqlite.Open(path)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer conn.Close()

	conn.Execute("CREATE TABLE bulk (id INTEGER PRIMARY KEY, payload TEXT)")
	for i := 1; i <= 200; i++ {
		conn.Execute("INSERT INTO bulk (id, payload) VALUES (" + strconv.Itoa(i) + ", 'xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx')")
	}
	conn.Execute("DELETE FROM bulk WHERE id > 20")

	if err := conn.Execute("VACUUM"); err != nil {
		t.Fatalf("VACUUM failed: %v", err)
	}

	result, err := conn.Query("SELECT COUNT(*) FROM bulk")
	if err != nil {
		t.Fatalf("Query after vacuum failed: %v", err)
	}
	if count, _ := result.GetInt(0, 0); count != 20 {
		t.Errorf("Expected 20 rows after vacuum, got %d", count)
	}

	// Data still readable row by row
	result, err = conn.Query("SELECT payload FROM bulk WHERE id = 7")
	if err != nil {
		t.Fatalf("Point query after vacuum failed: %v", err)
	}
	if result.RowCount() != 1 {
		t.Errorf("Expected row 7 to survive vacuum")
	}
}
