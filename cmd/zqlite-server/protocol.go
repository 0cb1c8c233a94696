// Package main provides a TCP SQL server over a zqlite database.
package main

import (
	"encoding/json"
)

// Response represents the server's response to one line of input.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"` // "query", "exec" or "auth"
	Result  json.RawMessage `json:"result,omitempty"`
}

// QueryResponse contains tabular query results.
type QueryResponse struct {
	Columns  []string   `json:"columns"`
	Data     [][]string `json:"data"`
	RowsRead int        `json:"rows_read"`
	TimeMs   float64    `json:"time_ms"`
}

// ExecResponse contains mutation results.
type ExecResponse struct {
	RowsAffected    int64   `json:"rows_affected"`
	LastInsertRowid int64   `json:"last_insert_rowid,omitempty"`
	TimeMs          float64 `json:"time_ms"`
}

// AuthResponse reports the outcome of an AUTH command.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	ExpiresIn     int    `json:"expires_in,omitempty"`
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func errorResponse(kind string, err error) Response {
	return Response{Success: false, Type: kind, Error: err.Error()}
}
