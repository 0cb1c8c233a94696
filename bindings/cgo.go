// Thin C shim over the connection surface. Handles stand in for Go
// pointers across the boundary; every object lives in a table keyed by
// an integer handle and is freed by its *_finalize / *_close /
// *_free call. Error codes are the engine's numeric codes; 100 and 101
// report row and done from zqlite_step.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"sync"
	"unsafe"

	zqlite "github.com/zqlite/zqlite-go"
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/db"
)

const (
	codeOK   = 0
	codeRow  = 100
	codeDone = 101
)

var (
	mu      sync.Mutex
	conns   = make(map[int]*db.Conn)
	stmts   = make(map[int]*db.Stmt)
	results = make(map[int]*db.Result)
	next    = 1
)

func put[T any](table map[int]T, value T) int {
	mu.Lock()
	defer mu.Unlock()
	handle := next
	next++
	table[handle] = value
	return handle
}

func connOf(handle C.int) *db.Conn {
	mu.Lock()
	defer mu.Unlock()
	return conns[int(handle)]
}

func stmtOf(handle C.int) *db.Stmt {
	mu.Lock()
	defer mu.Unlock()
	return stmts[int(handle)]
}

func resultOf(handle C.int) *db.Result {
	mu.Lock()
	defer mu.Unlock()
	return results[int(handle)]
}

func code(err error) C.int {
	if err == nil {
		return codeOK
	}
	return C.int(core.KindOf(err).Number())
}

//export zqlite_open
func zqlite_open(path *C.char) C.int {
	conn, err := zqlite.Open(C.GoString(path))
	if err != nil {
		return -1
	}
	return C.int(put(conns, conn))
}

//export zqlite_open_encrypted
func zqlite_open_encrypted(path, password *C.char) C.int {
	conn, err := zqlite.OpenEncrypted(C.GoString(path), C.GoString(password))
	if err != nil {
		return -1
	}
	return C.int(put(conns, conn))
}

//export zqlite_open_memory
func zqlite_open_memory() C.int {
	conn, err := zqlite.OpenMemory()
	if err != nil {
		return -1
	}
	return C.int(put(conns, conn))
}

//export zqlite_close
func zqlite_close(handle C.int) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	if err := conn.Close(); err != nil {
		return code(err)
	}
	mu.Lock()
	delete(conns, int(handle))
	mu.Unlock()
	return codeOK
}

//export zqlite_execute
func zqlite_execute(handle C.int, query *C.char) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(conn.Execute(C.GoString(query)))
}

//export zqlite_query
func zqlite_query(handle C.int, query *C.char) C.int {
	conn := connOf(handle)
	if conn == nil {
		return -1
	}
	result, err := conn.Query(C.GoString(query))
	if err != nil {
		return -1
	}
	return C.int(put(results, result))
}

//export zqlite_result_row_count
func zqlite_result_row_count(handle C.int) C.int {
	result := resultOf(handle)
	if result == nil {
		return -1
	}
	return C.int(result.RowCount())
}

//export zqlite_result_column_count
func zqlite_result_column_count(handle C.int) C.int {
	result := resultOf(handle)
	if result == nil {
		return -1
	}
	return C.int(result.ColumnCount())
}

//export zqlite_result_column_name
func zqlite_result_column_name(handle, col C.int) *C.char {
	result := resultOf(handle)
	if result == nil {
		return nil
	}
	return C.CString(result.ColumnName(int(col)))
}

//export zqlite_result_column_type
func zqlite_result_column_type(handle, row, col C.int) C.int {
	result := resultOf(handle)
	if result == nil {
		return -1
	}
	return C.int(result.ColumnType(int(row), int(col)).Code())
}

//export zqlite_result_get_text
func zqlite_result_get_text(handle, row, col C.int) *C.char {
	result := resultOf(handle)
	if result == nil {
		return nil
	}
	text, err := result.GetText(int(row), int(col))
	if err != nil {
		return nil
	}
	return C.CString(text)
}

//export zqlite_result_get_int
func zqlite_result_get_int(handle, row, col C.int) C.longlong {
	result := resultOf(handle)
	if result == nil {
		return 0
	}
	value, err := result.GetInt(int(row), int(col))
	if err != nil {
		return 0
	}
	return C.longlong(value)
}

//export zqlite_result_get_real
func zqlite_result_get_real(handle, row, col C.int) C.double {
	result := resultOf(handle)
	if result == nil {
		return 0
	}
	value, err := result.GetReal(int(row), int(col))
	if err != nil {
		return 0
	}
	return C.double(value)
}

//export zqlite_result_get_blob
func zqlite_result_get_blob(handle, row, col C.int, size *C.int) unsafe.Pointer {
	result := resultOf(handle)
	if result == nil {
		return nil
	}
	blob, err := result.GetBlob(int(row), int(col))
	if err != nil {
		return nil
	}
	*size = C.int(len(blob))
	return C.CBytes(blob)
}

//export zqlite_result_free
func zqlite_result_free(handle C.int) {
	mu.Lock()
	delete(results, int(handle))
	mu.Unlock()
}

//export zqlite_prepare
func zqlite_prepare(handle C.int, query *C.char) C.int {
	conn := connOf(handle)
	if conn == nil {
		return -1
	}
	stmt, err := conn.Prepare(C.GoString(query))
	if err != nil {
		return -1
	}
	return C.int(put(stmts, stmt))
}

//export zqlite_bind_int
func zqlite_bind_int(handle, index C.int, value C.longlong) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(stmt.BindInt(int(index), int64(value)))
}

//export zqlite_bind_real
func zqlite_bind_real(handle, index C.int, value C.double) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(stmt.BindReal(int(index), float64(value)))
}

//export zqlite_bind_text
func zqlite_bind_text(handle, index C.int, value *C.char) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(stmt.BindText(int(index), C.GoString(value)))
}

//export zqlite_bind_blob
func zqlite_bind_blob(handle, index C.int, value unsafe.Pointer, size C.int) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(stmt.BindBlob(int(index), C.GoBytes(value, size)))
}

//export zqlite_bind_null
func zqlite_bind_null(handle, index C.int) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(stmt.BindNull(int(index)))
}

//export zqlite_step
func zqlite_step(handle C.int) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	status, err := stmt.Step()
	if err != nil {
		return code(err)
	}
	if status == db.StatusRow {
		return codeRow
	}
	return codeDone
}

//export zqlite_reset
func zqlite_reset(handle C.int) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(stmt.Reset())
}

//export zqlite_finalize
func zqlite_finalize(handle C.int) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return C.int(core.KindUsage.Number())
	}
	err := stmt.Finalize()
	mu.Lock()
	delete(stmts, int(handle))
	mu.Unlock()
	return code(err)
}

//export zqlite_column_count
func zqlite_column_count(handle C.int) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return -1
	}
	return C.int(stmt.ColumnCount())
}

//export zqlite_column_name
func zqlite_column_name(handle, col C.int) *C.char {
	stmt := stmtOf(handle)
	if stmt == nil {
		return nil
	}
	return C.CString(stmt.ColumnName(int(col)))
}

//export zqlite_column_type
func zqlite_column_type(handle, col C.int) C.int {
	stmt := stmtOf(handle)
	if stmt == nil {
		return -1
	}
	return C.int(stmt.ColumnType(int(col)).Code())
}

//export zqlite_column_text
func zqlite_column_text(handle, col C.int) *C.char {
	stmt := stmtOf(handle)
	if stmt == nil {
		return nil
	}
	text, err := stmt.GetText(int(col))
	if err != nil {
		return nil
	}
	return C.CString(text)
}

//export zqlite_column_int
func zqlite_column_int(handle, col C.int) C.longlong {
	stmt := stmtOf(handle)
	if stmt == nil {
		return 0
	}
	value, err := stmt.GetInt(int(col))
	if err != nil {
		return 0
	}
	return C.longlong(value)
}

//export zqlite_column_real
func zqlite_column_real(handle, col C.int) C.double {
	stmt := stmtOf(handle)
	if stmt == nil {
		return 0
	}
	value, err := stmt.GetReal(int(col))
	if err != nil {
		return 0
	}
	return C.double(value)
}

//export zqlite_column_blob
func zqlite_column_blob(handle, col C.int, size *C.int) unsafe.Pointer {
	stmt := stmtOf(handle)
	if stmt == nil {
		return nil
	}
	blob, err := stmt.GetBlob(int(col))
	if err != nil {
		return nil
	}
	*size = C.int(len(blob))
	return C.CBytes(blob)
}

//export zqlite_begin_transaction
func zqlite_begin_transaction(handle C.int) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(conn.Begin())
}

//export zqlite_commit_transaction
func zqlite_commit_transaction(handle C.int) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(conn.Commit())
}

//export zqlite_rollback_transaction
func zqlite_rollback_transaction(handle C.int) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(conn.Rollback())
}

//export zqlite_json_extract
func zqlite_json_extract(handle C.int, doc, path *C.char) *C.char {
	conn := connOf(handle)
	if conn == nil {
		return nil
	}
	value, err := conn.JSONExtract(C.GoString(doc), C.GoString(path))
	if err != nil {
		return nil
	}
	return C.CString(value)
}

//export zqlite_json_set
func zqlite_json_set(handle C.int, doc, path, value *C.char) *C.char {
	conn := connOf(handle)
	if conn == nil {
		return nil
	}
	out, err := conn.JSONSet(C.GoString(doc), C.GoString(path), core.Text(C.GoString(value)))
	if err != nil {
		return nil
	}
	return C.CString(out)
}

//export zqlite_json_type
func zqlite_json_type(handle C.int, doc, path *C.char) *C.char {
	conn := connOf(handle)
	if conn == nil {
		return nil
	}
	typ, err := conn.JSONType(C.GoString(doc), C.GoString(path))
	if err != nil {
		return nil
	}
	return C.CString(typ)
}

//export zqlite_errcode
func zqlite_errcode(handle C.int) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return C.int(conn.ErrCode())
}

//export zqlite_errmsg
func zqlite_errmsg(handle C.int) *C.char {
	conn := connOf(handle)
	if conn == nil {
		return C.CString("invalid handle")
	}
	return C.CString(conn.ErrMsg())
}

//export zqlite_last_insert_rowid
func zqlite_last_insert_rowid(handle C.int) C.longlong {
	conn := connOf(handle)
	if conn == nil {
		return 0
	}
	return C.longlong(conn.LastInsertRowid())
}

//export zqlite_changes
func zqlite_changes(handle C.int) C.longlong {
	conn := connOf(handle)
	if conn == nil {
		return 0
	}
	return C.longlong(conn.Changes())
}

//export zqlite_enable_wal_mode
func zqlite_enable_wal_mode(handle C.int) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(conn.EnableWAL())
}

//export zqlite_vacuum
func zqlite_vacuum(handle C.int) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(conn.Vacuum())
}

//export zqlite_backup
func zqlite_backup(handle C.int, dest *C.char) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	return code(conn.Backup(C.GoString(dest)))
}

//export zqlite_create_index
func zqlite_create_index(handle C.int, table, column, indexType *C.char) C.int {
	conn := connOf(handle)
	if conn == nil {
		return C.int(core.KindUsage.Number())
	}
	// indexType is accepted for interface compatibility; every index is
	// an ordered tree
	_ = indexType
	return code(conn.CreateIndex(C.GoString(table), C.GoString(column)))
}

//export zqlite_interrupt
func zqlite_interrupt(handle C.int) {
	if conn := connOf(handle); conn != nil {
		conn.Interrupt()
	}
}

//export zqlite_version
func zqlite_version() *C.char {
	return C.CString(zqlite.Version())
}

//export zqlite_shutdown
func zqlite_shutdown() {
	mu.Lock()
	open := make([]*db.Conn, 0, len(conns))
	for _, conn := range conns {
		open = append(open, conn)
	}
	conns = make(map[int]*db.Conn)
	stmts = make(map[int]*db.Stmt)
	results = make(map[int]*db.Result)
	mu.Unlock()
	for _, conn := range open {
		conn.Close()
	}
}

//export zqlite_free
func zqlite_free(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func main() {}
