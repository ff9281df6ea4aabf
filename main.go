package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashtree/verifier/pkg/auditlog"
	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/config"
	"github.com/hashtree/verifier/pkg/metrics"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
	"github.com/hashtree/verifier/pkg/verify"
	"github.com/hashtree/verifier/pkg/verifiermap"
	"github.com/hashtree/verifier/pkg/view"
	"github.com/hashtree/verifier/pkg/wsserver"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "view":
		err = viewCommand(os.Args[2:])
	case "-help", "--help", "help":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  run                     start the server")
	fmt.Fprintln(os.Stderr, "  view -kind K -hash H    walk a stream backward from H")
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dumpExamples := fs.String("dump-examples", "", "write one sample of each wire message type to this directory and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dumpExamples != "" {
		if err := wsserver.WriteExampleMessages(*dumpExamples); err != nil {
			return fmt.Errorf("dump example messages: %w", err)
		}
		log.Printf("wrote example messages to %s", *dumpExamples)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	status := metrics.NewStatus()
	reg := prometheus.NewRegistry()

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	store := block.NewStore(backend, log.New(os.Stderr, "[block] ", log.LstdFlags), reg)
	status.SetReady("block_store", true)

	serverKey, err := signed.LoadOrGenerate(filepath.Join(cfg.SecretDir, "websocket_key"))
	if err != nil {
		return fmt.Errorf("load websocket key: %w", err)
	}

	verifyMetrics := verify.NewMetrics(reg)
	streams, err := loadOrCreateStreams(cfg, store, verifyMetrics)
	if err != nil {
		return fmt.Errorf("load verifier map: %w", err)
	}
	status.SetReady("verifier_map", true)

	audit, err := auditlog.Open(cfg.AuditDSN)
	if err != nil {
		log.Printf("audit log disabled: %v", err)
		audit = nil
	}
	defer audit.Close()
	status.SetReady("audit_log", audit != nil)

	wsSrv := wsserver.NewServer(serverKey, store, streams, cfg.DeferWorkers, log.New(os.Stderr, "[wsserver] ", log.LstdFlags), reg, audit)
	status.SetReady("websocket", true)

	var httpSrv *http.Server
	if cfg.MetricsAddr != "" {
		httpSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(reg, status)}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	wsErrCh := make(chan error, 1)
	go func() { wsErrCh <- wsSrv.ListenAndServe(cfg.ListenAddr) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-wsErrCh:
		return fmt.Errorf("websocket server: %w", err)
	case <-quit:
		log.Printf("shutting down")
	}

	if err := streams.ToDir(); err != nil {
		log.Printf("final flush of verifier map: %v", err)
	}
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
	}
	return nil
}

func openBackend(cfg config.Config) (block.Backend, error) {
	if cfg.UseKVBackend {
		return block.NewKVBackend("blocks", cfg.KVDir)
	}
	return block.NewFSBackend(cfg.BlocksDir)
}

func loadOrCreateStreams(cfg config.Config, store *block.Store, verifyMetrics *verify.Metrics) (*verifiermap.Map, error) {
	opts := []verifiermap.Option{
		verifiermap.WithDebounce(cfg.StreamsDebounce),
		verifiermap.WithMetrics(verifyMetrics),
	}
	m, err := verifiermap.FromDir(cfg.StreamsDir, store, opts...)
	if err == verifiermap.ErrNotFound {
		m = verifiermap.NewDir(cfg.StreamsDir, store, opts...)
		rootKey, kerr := signed.LoadOrGenerate(filepath.Join(cfg.SecretDir, "root_key"))
		if kerr != nil {
			return nil, kerr
		}
		allowed := signed.NewAllowedKeys(rootKey.Public)
		stream, aerr := m.AddNew("main", allowed)
		if aerr != nil {
			return nil, aerr
		}
		if _, ferr := stream.Force(update.NewNamedHash()); ferr != nil {
			return nil, ferr
		}
		return m, nil
	}
	return m, err
}

func viewCommand(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	kind := fs.String("kind", "test", "stream value kind: "+fmt.Sprint(view.KnownKinds))
	hashStr := fs.String("hash", "", "starting block hash, base64url-no-pad")
	blocksDir := fs.String("blocks-dir", "public/blocks", "blocks directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *hashStr == "" {
		return fmt.Errorf("view: -hash is required")
	}
	hash, err := blockhash.Parse(*hashStr)
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}
	backend, err := block.NewFSBackend(*blocksDir)
	if err != nil {
		return err
	}
	store := block.NewStore(backend, nil, nil)
	return view.Navigate(store, *kind, hash, os.Stdin, os.Stdout)
}
