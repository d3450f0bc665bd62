package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"shoplist/internal/config"
	"shoplist/internal/discovery"
	"shoplist/internal/docstore"
	"shoplist/internal/server"
	"shoplist/internal/shopping"
	"shoplist/internal/storage"
	"shoplist/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"
	"github.com/spf13/pflag"
)

var (
	configFlag     = pflag.String("config", config.DefaultPath(), "Config file (JSON, comments allowed)")
	initConfigFlag = pflag.Bool("init-config", false, "Write the default config file and exit")
	serveFlag      = pflag.Bool("serve", false, "Run the document server instead of the UI")
)

func main() {
	config.AddFlags(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	// glog reads its settings from the standard flag set.
	_ = flag.CommandLine.Parse(nil)
	defer glog.Flush()

	if *initConfigFlag {
		if err := config.WriteDefault(*configFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *configFlag)
		return
	}

	cfg, err := config.Load(*configFlag, pflag.CommandLine.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyFlags(pflag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveFlag {
		err = runServer(ctx, cfg)
	} else {
		err = runClient(ctx, cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	dbPath := cfg.Server.DBPath
	if dbPath == "" {
		dataDir, err := config.DataDir()
		if err != nil {
			return err
		}
		dbPath = filepath.Join(dataDir, "documents.db")
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if cfg.Server.PassphraseFile != "" {
		passphrase, err := os.ReadFile(cfg.Server.PassphraseFile)
		if err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
		if err := store.Unlock(strings.TrimSpace(string(passphrase))); err != nil {
			return err
		}
	}

	srv := server.New(store, cfg.Server.Port)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	if cfg.Server.Announce {
		name := cfg.Server.Name
		if name == "" {
			name, _ = os.Hostname()
		}
		announcer, err := discovery.Announce(name, srv.Port(), cfg.DocumentPath)
		if err != nil {
			glog.Warningf("mDNS announce failed: %v", err)
		} else {
			defer announcer.Stop()
		}
	}

	fmt.Printf("Serving documents on :%d (Ctrl+C to stop)\n", srv.Port())
	<-ctx.Done()
	glog.Infof("shutting down document server")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (docstore.Store, string, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return docstore.NewMemory(), "", nil

	case config.BackendFirestore:
		fs, err := docstore.NewFirestore(ctx, cfg.Firestore.Project, cfg.Firestore.Credentials)
		if err != nil {
			return nil, "", err
		}
		fs.SetPollInterval(cfg.PollInterval.Duration)
		return fs, "firestore:" + cfg.Firestore.Project, nil
	}

	serverURL := cfg.ServerURL
	if serverURL == "" {
		found, err := discovery.Lookup(ctx, discovery.DefaultLookupTimeout)
		if errors.Is(err, discovery.ErrNoServer) {
			return nil, "", fmt.Errorf("%w (use --server, --local or --backend firestore)", err)
		}
		if err != nil {
			return nil, "", err
		}
		glog.Infof("found document server %s at %s", found.Name, found.Addr())
		serverURL = found.Addr()
	}

	client := docstore.NewClient(serverURL, cfg.Timeout.Duration)
	return client, client.BaseURL(), nil
}

func runClient(ctx context.Context, cfg config.Config) error {
	remote, source, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := shopping.New(ctx, remote, shopping.Options{
		Path:       cfg.DocumentPath,
		Retries:    cfg.WriteRetries,
		RetryDelay: cfg.RetryDelay.Duration,
	})

	var sync *shopping.Sync
	if cfg.Backend != config.BackendMemory {
		sync = shopping.NewSync(remote, state, cfg.DocumentPath, nil)
		defer sync.Close()
	}

	app := tui.NewApp(ctx, state, sync, source)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	flushed := make(chan struct{})
	go func() {
		state.Flush()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(5 * time.Second):
		glog.Warningf("gave up waiting for pending writes")
	}
	return nil
}
