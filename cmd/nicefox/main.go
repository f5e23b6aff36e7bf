package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/co-l/nicefox/pkg/config"
	"github.com/co-l/nicefox/pkg/cypher"
	"github.com/co-l/nicefox/pkg/cypher/ast"
	"github.com/co-l/nicefox/pkg/db"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: nicefox [init|run|translate|schema|status|version]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		handleInit()
	case "run":
		handleRun()
	case "translate":
		handleTranslate()
	case "schema":
		handleSchema()
	case "status":
		handleStatus()
	case "version":
		fmt.Printf("nicefox version %s\n", version)
	default:
		fmt.Println("Unknown command:", os.Args[1])
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.NewDefaultLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)
	return cfg
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openStore(cfg *config.Config) *db.DB {
	path, err := cfg.DatabasePath(&config.RealFileSystem{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, err := db.Open(db.Config{
		Path:          path,
		WAL:           cfg.Database.WAL,
		ForeignKeys:   cfg.Database.ForeignKeys,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		MaxIdleConns:  cfg.Database.MaxIdleConns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return store
}

func handleInit() {
	cfg := loadConfig()
	store := openStore(cfg)
	defer store.Close()
	fmt.Println("✓ Database initialized at", store.Path())
}

// readQueryInput reads a query document (AST JSON) and optional parameter
// bindings. The Cypher text parser is an external tool; hosts hand us its
// output.
func readQueryInput(fs *flag.FlagSet, args []string) (*ast.Query, map[string]any) {
	queryPath := fs.String("query", "", "Path to query document (AST JSON), - for stdin")
	paramsJSON := fs.String("params", "", "Parameter bindings as a JSON object")
	fs.Parse(args)

	if *queryPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -query is required")
		os.Exit(1)
	}
	var data []byte
	var err error
	if *queryPath == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*queryPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	query, err := ast.DecodeQuery(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	params := map[string]any{}
	if *paramsJSON != "" {
		if err := json.Unmarshal([]byte(*paramsJSON), &params); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -params: %v\n", err)
			os.Exit(1)
		}
	}
	return query, params
}

func handleRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	query, params := readQueryInput(fs, os.Args[2:])

	cfg := loadConfig()
	store := openStore(cfg)
	defer store.Close()

	start := time.Now()
	result, err := store.Run(query, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.Debug("query executed", "rows", len(result.Rows), "elapsed", time.Since(start))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(map[string]any{
		"columns": result.Columns,
		"rows":    result.Rows,
	})
}

func handleTranslate() {
	fs := flag.NewFlagSet("translate", flag.ExitOnError)
	query, params := readQueryInput(fs, os.Args[2:])

	result, err := cypher.Translate(query, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, stmt := range result.Statements {
		fmt.Println(stmt.SQL)
		if len(stmt.Params) > 0 {
			paramsOut, _ := json.Marshal(stmt.Params)
			fmt.Printf("-- params: %s\n", paramsOut)
		}
	}
	if result.ReturnColumns != nil {
		cols, _ := json.Marshal(result.ReturnColumns)
		fmt.Printf("-- columns: %s\n", cols)
	}
}

func handleSchema() {
	for _, ddl := range []string{
		db.CreateMetaTable,
		db.CreateNodesTable,
		db.CreateEdgesTable,
		db.CreateEdgesSourceIndex,
		db.CreateEdgesTargetIndex,
		db.CreateEdgesTypeIndex,
	} {
		fmt.Println(ddl)
	}
}

func handleStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	watch := fs.Bool("watch", false, "Re-check when the config file changes")
	fs.Parse(os.Args[2:])

	reportStatus(loadConfig())
	if !*watch {
		return
	}

	path, err := config.DefaultConfigPath(&config.RealFileSystem{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	watcher, err := config.NewFsnotifyWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer watcher.Close()
	if err := watcher.Watch(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.Info("watching config", "path", path)
	for ev := range watcher.Events() {
		if ev.Operation == "deleted" {
			continue
		}
		slog.Info("config changed, re-checking", "path", ev.Path)
		reportStatus(loadConfig())
	}
}

func reportStatus(cfg *config.Config) {
	store := openStore(cfg)
	defer store.Close()

	if err := store.HealthCheck(); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return
	}
	fmt.Println("✓ Database healthy at", store.Path())

	for _, q := range []struct{ label, sql string }{
		{"nodes", "SELECT COUNT(*) FROM nodes"},
		{"edges", "SELECT COUNT(*) FROM edges"},
	} {
		rows, err := store.RawQuery(q.sql)
		if err != nil {
			continue
		}
		var count int
		if rows.Next() {
			rows.Scan(&count)
		}
		rows.Close()
		fmt.Printf("  %s: %d\n", q.label, count)
	}
}
