// Command locustdb runs the engine's HTTP-facing server: a flag-based
// CLI entry point, optionally overlaid with a YAML config file.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreheringer/LocustDB/diskstore"
	"github.com/andreheringer/LocustDB/httpapi"
	"github.com/andreheringer/LocustDB/innerdb"
	"github.com/andreheringer/LocustDB/store"
)

// openStore returns a FileStore rooted at dataDir, or a MemStore (and
// thus no persistence across restarts) if dataDir is empty.
func openStore(dataDir string) (store.DiskStore, error) {
	if dataDir == "" {
		return diskstore.NewMemStore(), nil
	}
	return diskstore.NewFileStore(dataDir)
}

var (
	dashThreads     int
	dashBatchSize   int
	dashReadThreads int
	dashMemLimit    int64
	dashDataDir     string
	dashListen      string
	dashConfig      string
)

func init() {
	flag.IntVar(&dashThreads, "threads", 4, "number of query/ingest worker threads")
	flag.IntVar(&dashBatchSize, "batch-size", 1024, "rows per sealed partition")
	flag.IntVar(&dashReadThreads, "read-threads", 2, "concurrent disk-read fault-ins")
	flag.Int64Var(&dashMemLimit, "mem-limit", 0, "soft resident memory ceiling in bytes (0 = unlimited)")
	flag.StringVar(&dashDataDir, "data-dir", "", "directory for persisted partitions (empty = memory-only)")
	flag.StringVar(&dashListen, "listen", "127.0.0.1:8080", "HTTP listen address")
	flag.StringVar(&dashConfig, "config", "", "optional YAML config file overlaying the flags above")
}

func main() {
	flag.Parse()
	logger := log.New(os.Stderr, "", log.LstdFlags)

	opts := innerdb.Options{
		Threads:            dashThreads,
		BatchSize:          dashBatchSize,
		ReadThreads:        dashReadThreads,
		MemSizeLimitTables: dashMemLimit,
	}
	dataDir, listenAddr := dashDataDir, dashListen
	if err := loadConfigOverlay(dashConfig, &opts, &dataDir, &listenAddr); err != nil {
		logger.Fatal(err)
	}

	disk, err := openStore(dataDir)
	if err != nil {
		logger.Fatal(err)
	}

	db, err := innerdb.NewDB(opts, disk)
	if err != nil {
		logger.Fatalf("starting coordinator: %s", err)
	}
	defer db.Close()

	srv := httpapi.NewServer(db, logger)
	httpSrv := &http.Server{Addr: listenAddr, Handler: srv.Handler()}

	go func() {
		logger.Printf("listening on %s", listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Fprintln(os.Stderr, "shutting down")
	_ = httpSrv.Close()
}
