package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/zqlite/zqlite-go/db"
)

// Server is a TCP SQL server exposing one zqlite database. Queries run
// over a single shared connection, serialized with a mutex.
type Server struct {
	listener   net.Listener
	conn       *db.Conn
	authConfig *AuthConfig
	mu         sync.Mutex
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewServer creates a server over an open database connection.
func NewServer(conn *db.Conn) *Server {
	return &Server{
		conn: conn,
		done: make(chan struct{}),
	}
}

// NewServerWithAuth creates a server that requires JWT authentication.
func NewServerWithAuth(conn *db.Conn, authConfig *AuthConfig) *Server {
	server := NewServer(conn)
	server.authConfig = authConfig
	return server
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	log.Printf("SQL server listening on %s", addr)

	go s.acceptLoop()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	log.Printf("Client connected: %s", conn.RemoteAddr())

	reader := bufio.NewReader(conn)
	state := &ConnectionState{}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// One query per line
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("Read error from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}

		if strings.EqualFold(query, "quit") || strings.EqualFold(query, "exit") {
			log.Printf("Client disconnected: %s", conn.RemoteAddr())
			return
		}

		var response Response
		switch {
		case strings.HasPrefix(strings.ToUpper(query), "AUTH "):
			response = s.handleAuth(query, state)
		case s.authRequired() && !state.IsAuthenticated():
			response = errorResponse("auth", errors.New("authentication required"))
		default:
			response = s.executeQuery(query)
		}

		data, err := EncodeResponse(response)
		if err != nil {
			log.Printf("Failed to encode response: %v", err)
			continue
		}

		if _, err := conn.Write(data); err != nil {
			log.Printf("Write error to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) authRequired() bool {
	return s.authConfig != nil && s.authConfig.Enabled
}

func (s *Server) executeQuery(query string) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.conn.Query(query)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	if result.ColumnCount() > 0 {
		qr := QueryResponse{
			Columns:  make([]string, result.ColumnCount()),
			Data:     make([][]string, 0, result.RowCount()),
			RowsRead: result.RowCount(),
			TimeMs:   elapsed,
		}
		for col := 0; col < result.ColumnCount(); col++ {
			qr.Columns[col] = result.ColumnName(col)
		}
		for row := 0; row < result.RowCount(); row++ {
			cells := make([]string, result.ColumnCount())
			for col := 0; col < result.ColumnCount(); col++ {
				cells[col] = result.DisplayCell(row, col)
			}
			qr.Data = append(qr.Data, cells)
		}
		data, _ := json.Marshal(qr)
		return Response{Success: true, Type: "query", Result: data}
	}

	er := ExecResponse{
		RowsAffected:    s.conn.Changes(),
		LastInsertRowid: s.conn.LastInsertRowid(),
		TimeMs:          elapsed,
	}
	data, _ := json.Marshal(er)
	return Response{Success: true, Type: "exec", Result: data}
}
