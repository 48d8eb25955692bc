// Command nsdb is a demonstration entry point: it wires the schema
// actor, metadata coordinator, write coordinator, read coordinator,
// and namespace data actors together in a single process and executes
// SQL statements read line by line from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aogier/nsdb/internal/config"
	"github.com/aogier/nsdb/internal/coordinator"
	"github.com/aogier/nsdb/internal/metadata"
	"github.com/aogier/nsdb/internal/namespace"
	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/internal/schema"
	"github.com/aogier/nsdb/internal/server"
	"github.com/aogier/nsdb/internal/storage"
)

// db is the fixed database coordinate for this demonstration process;
// nothing in the SQL grammar selects one, so every statement runs
// against it.
const db = "default"

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("nsdb: %v", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("nsdb: invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("nsdb: %v", err)
	}

	objectStore, err := newObjectStore(cfg)
	if err != nil {
		log.Fatalf("nsdb: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sm := server.NewShutdownManager(server.DefaultShutdownConfig())

	schemaActor := schema.NewActor()
	schemaActor.Start(ctx)
	sm.RegisterCloser(server.CloserFunc(func() error {
		schemaActor.Stop()
		return nil
	}))

	var store *metadata.Store
	if cfg.Metadata.DBPath != "" {
		store, err = metadata.OpenStore(cfg.Metadata.DBPath)
		if err != nil {
			log.Fatalf("nsdb: %v", err)
		}
		sm.RegisterCloser(store)
	}

	metadataCoord := metadata.NewCoordinator(func(metric string, from, to int64) string {
		return cfg.NodeID
	}, cfg.Sharding.Interval, nil, store)
	metadataCoord.Start(ctx)
	sm.RegisterCloser(server.CloserFunc(func() error {
		metadataCoord.Stop()
		return nil
	}))

	if store != nil {
		locs, err := store.LoadLocations(ctx)
		if err != nil {
			log.Fatalf("nsdb: %v", err)
		}
		infos, err := store.LoadMetricInfos(ctx)
		if err != nil {
			log.Fatalf("nsdb: %v", err)
		}
		if err := metadataCoord.WarmUp(ctx, cfg.NodeID, metadata.WarmUpSeed{Locations: locs, MetricInfos: infos}); err != nil {
			log.Fatalf("nsdb: %v", err)
		}
	} else {
		if err := metadataCoord.WarmUp(ctx, cfg.NodeID, metadata.WarmUpSeed{}); err != nil {
			log.Fatalf("nsdb: %v", err)
		}
	}

	registry := newNamespaceRegistry(cfg.DataDir, objectStore, cfg.WriteScheduler.Interval)
	sm.RegisterCloser(server.CloserFunc(func() error {
		registry.stopAll()
		return nil
	}))

	go func() {
		if err := sm.ListenForSignals(ctx); err != nil {
			log.Printf("nsdb: shutdown: %v", err)
		}
	}()

	fmt.Println("nsdb> ready. enter SQL statements, one per line (USE <namespace> switches namespace).")

	ns := "default"
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			sm.Shutdown(ctx, "exit command")
			return
		}
		if rest, ok := stripPrefixFold(line, "use "); ok {
			ns = strings.TrimSuffix(strings.TrimSpace(rest), ";")
			fmt.Printf("ok: namespace set to %q\n", ns)
			continue
		}
		if rest, ok := stripPrefixFold(line, "drop namespace "); ok {
			target := strings.TrimSuffix(strings.TrimSpace(rest), ";")
			wc := coordinator.NewWriteCoordinator(schemaActor, metadataCoord, registry.resolverFor(db, target))
			if _, err := wc.DeleteNamespace(ctx, db, target); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Printf("ok: namespace %q dropped\n", target)
			continue
		}

		if err := runStatement(ctx, ns, line, schemaActor, metadataCoord, registry); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		sm.Shutdown(ctx, "stdin error")
		log.Fatalf("nsdb: reading stdin: %v", err)
	}
	sm.Shutdown(ctx, "stdin closed")
}

// stripPrefixFold reports whether line starts with prefix
// case-insensitively, returning the remainder if so.
func stripPrefixFold(line, prefix string) (string, bool) {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}
	return line[len(prefix):], true
}

func newObjectStore(cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "s3":
		s3cfg := storage.DefaultS3Config()
		s3cfg.Region = cfg.Storage.S3.Region
		s3cfg.Endpoint = cfg.Storage.S3.Endpoint
		return storage.NewS3Storage(context.Background(), cfg.Storage.S3.Bucket, s3cfg)
	default:
		return storage.NewLocalStorage(cfg.Storage.Path)
	}
}

func runStatement(ctx context.Context, ns, line string, schemaActor *schema.Actor, metadataCoord *metadata.Coordinator, registry *namespaceRegistry) error {
	stmt, err := parser.Parse(ns, line)
	if err != nil {
		return err
	}

	wc := coordinator.NewWriteCoordinator(schemaActor, metadataCoord, registry.resolverFor(db, ns))
	rc := coordinator.NewReadCoordinator(schemaActor, metadataCoord, registry.resolverFor(db, ns))

	switch s := stmt.(type) {
	case *parser.Insert:
		result, err := wc.MapInput(ctx, db, s)
		if err != nil {
			return err
		}
		fmt.Printf("ok: written to node %s [%d, %d)\n", result.Location.Node, result.Location.From, result.Location.To)
	case *parser.Delete:
		n, err := wc.ExecuteDeleteStatement(ctx, db, s)
		if err != nil {
			return err
		}
		fmt.Printf("ok: deleted %d records\n", n)
	case *parser.Drop:
		if err := wc.DropMetric(ctx, db, s); err != nil {
			return err
		}
		fmt.Println("ok: metric dropped")
	case *parser.Select:
		result, err := rc.ExecuteStatement(ctx, db, s)
		if err != nil {
			return err
		}
		printResult(result)
	default:
		return fmt.Errorf("unsupported statement type %T", stmt)
	}
	return nil
}

func printResult(result coordinator.SelectResult) {
	fmt.Println(strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
}

// namespaceRegistry lazily creates one namespace data actor per (db,
// ns, node) triple, so the demonstration process can serve every
// namespace a client's statements touch without pre-declaring them.
type namespaceRegistry struct {
	mu            sync.Mutex
	actors        map[string]*namespace.Actor
	dataDir       string
	store         storage.ObjectStorage
	flushInterval time.Duration
	ctx           context.Context
}

func newNamespaceRegistry(dataDir string, store storage.ObjectStorage, flushInterval time.Duration) *namespaceRegistry {
	return &namespaceRegistry{
		actors:        make(map[string]*namespace.Actor),
		dataDir:       dataDir,
		store:         store,
		flushInterval: flushInterval,
		ctx:           context.Background(),
	}
}

func (r *namespaceRegistry) resolverFor(db, ns string) coordinator.NamespaceResolver {
	return func(node string) (coordinator.NamespaceActor, bool) {
		return r.getOrCreate(node, db, ns), true
	}
}

func (r *namespaceRegistry) getOrCreate(node, db, ns string) *namespace.Actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := node + "/" + db + "/" + ns
	if a, ok := r.actors[key]; ok {
		return a
	}

	dir := filepath.Join(r.dataDir, "wal", node, db, ns)
	a := namespace.NewActor(db, ns, dir, r.store, r.flushInterval)
	a.Start(r.ctx)
	r.actors[key] = a
	return a
}

func (r *namespaceRegistry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actors {
		a.Stop()
	}
}
