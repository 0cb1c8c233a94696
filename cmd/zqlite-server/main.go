package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/zqlite/zqlite-go"
	"github.com/zqlite/zqlite-go/db"
)

func main() {
	configPath := pflag.String("config", "", "YAML configuration file")
	port := pflag.Int("port", 0, "TCP port to listen on (overrides config)")
	dbPath := pflag.String("db", "", "Database file (overrides config; in-memory if empty)")
	key := pflag.String("key", "", "Encryption password (overrides config)")
	showVersion := pflag.Bool("version", false, "Show version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("zqlite server v%s\n", zqlite.Version())
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}
	if *key != "" {
		cfg.Key = *key
	}

	var conn *db.Conn
	var err error
	switch {
	case cfg.Database == "":
		log.Println("Using in-memory database")
		conn, err = zqlite.OpenMemory()
	case cfg.Key != "":
		log.Printf("Using encrypted database: %s", cfg.Database)
		conn, err = zqlite.OpenEncrypted(cfg.Database, cfg.Key)
	default:
		log.Printf("Using database: %s", cfg.Database)
		conn, err = zqlite.Open(cfg.Database)
	}
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()

	if cfg.WAL {
		if err := conn.EnableWAL(); err != nil {
			log.Fatalf("Failed to enable WAL: %v", err)
		}
		log.Println("Write-ahead logging enabled")
	}

	var server *Server
	if cfg.Auth.Enabled {
		log.Println("JWT authentication enabled")
		server = NewServerWithAuth(conn, &cfg.Auth)
	} else {
		server = NewServer(conn)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	if err := server.Start(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Printf("║   zqlite SQL Server v%-16s ║\n", zqlite.Version())
	fmt.Println("║   Embedded SQL Database Engine        ║")
	fmt.Println("╚═══════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Listening on port %d\n", cfg.Port)
	fmt.Println("Send SQL queries (one per line), 'quit' to disconnect")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	server.Stop()
	log.Println("Server stopped")
}
