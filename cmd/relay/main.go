package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"relay/config"
	"relay/internal/controlplane"
	"relay/internal/geoip"
	"relay/internal/graph"
	"relay/internal/logging"
	"relay/internal/model"
	"relay/internal/registry"
	"relay/internal/source"
	"relay/internal/storage"
	"relay/internal/tracker"
	"gopkg.in/yaml.v3"
)

func main() {
	var debug bool
	var flags config.Config
	var geoDBPath string

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Configurable multi-protocol network proxy engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&geoDBPath, "geo-db", "", "path to a MaxMind country database for geoip rule matchers")

	serveCmd := &cobra.Command{
		Use:   "serve SOURCE",
		Short: "Run the proxy engine and its control plane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args[0], flags, geoDBPath)
		},
	}
	serveCmd.Flags().StringVar(&flags.Bind, "bind", "", "control plane listen address (host:port)")
	serveCmd.Flags().StringVar(&flags.Token, "token", "", "control plane bearer token")
	serveCmd.Flags().StringVar(&flags.WebUI, "web-ui", "", "static web UI directory")

	checkCmd := &cobra.Command{
		Use:   "check SOURCE",
		Short: "Validate a config document and its registry dependencies without serving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args[0], geoDBPath)
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema PATH",
		Short: "Emit the configuration document's JSON Schema to PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(args[0])
		},
	}

	root.AddCommand(serveCmd, checkCmd, schemaCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRegistries wires every net and server type into fresh registries,
// per §4.* one type per section (bootstrap.go).
func buildRegistries(geoDBPath string) (*registry.Registry, *registry.ServerRegistry, func() error, error) {
	var geoDB *geoip.DB
	closeGeo := func() error { return nil }
	if geoDBPath != "" {
		db, err := geoip.Open(geoDBPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open geo db: %w", err)
		}
		geoDB = db
		closeGeo = db.Close
	}

	netReg := registry.New()
	if err := registerNets(netReg, geoDB); err != nil {
		return nil, nil, nil, err
	}
	srvReg := registry.NewServerRegistry()
	if err := registerServers(srvReg); err != nil {
		return nil, nil, nil, err
	}
	return netReg, srvReg, closeGeo, nil
}

// openStores resolves the three storage folders off cfg into disk-backed
// stores, creating directories on demand, and returns a resolveStorage
// closure for arbitrary named folders referenced by `storage` import
// sources (§4.2, §6 "Persisted state layout").
func openStores(cfg config.Config) (cache, overrides, userdata storage.Store, resolveStorage func(string) (storage.Store, error), err error) {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = config.DefaultCacheDir()
	}
	overrideDir := cfg.OverrideDir
	if overrideDir == "" {
		overrideDir = config.DefaultOverrideDir()
	}
	userdataDir := cfg.UserdataDir
	if userdataDir == "" {
		userdataDir = config.DefaultUserdataDir()
	}

	cache, err = storage.NewDisk(cacheDir)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open cache store: %w", err)
	}
	overrides, err = storage.NewDisk(overrideDir)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open override store: %w", err)
	}
	userdata, err = storage.NewDisk(userdataDir)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open userdata store: %w", err)
	}

	storageRoot := filepath.Dir(cacheDir)
	resolveStorage = func(folder string) (storage.Store, error) {
		return storage.NewDisk(filepath.Join(storageRoot, folder))
	}
	return cache, overrides, userdata, resolveStorage, nil
}

func runServe(sourceArg string, flagCfg config.Config, geoDBPath string) error {
	fileCfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg := fileCfg.Merge(flagCfg)

	if err := logging.Configure(cfg.LogLevel); err != nil {
		return err
	}

	netReg, srvReg, closeGeo, err := buildRegistries(geoDBPath)
	if err != nil {
		return err
	}
	defer closeGeo()

	cache, overrides, userdata, resolveStorage, err := openStores(cfg)
	if err != nil {
		return err
	}

	trk := tracker.New()
	g := graph.New(netReg, srvReg, trk)
	engine := controlplane.NewEngine(g, netReg, srvReg, cache, overrides, resolveStorage)

	cpSrv := controlplane.New(engine, userdata, resolveStorage, cfg.Token)
	if err := logging.ConfigureWithWrap(cfg.LogLevel, cpSrv.LogHandler); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	initial, err := source.Build(model.ImportSource{Path: sourceArg}, resolveStorage)
	if err != nil {
		return err
	}
	if err := engine.Start(ctx, initial); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	bind := cfg.Bind
	if bind == "" {
		bind = "127.0.0.1:9000"
	}
	errCh := make(chan error, 1)
	go func() { errCh <- cpSrv.ListenAndServe(ctx, bind) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control plane: %w", err)
		}
	}

	stopCtx, stopCancel := context.WithCancel(context.Background())
	defer stopCancel()
	return engine.Stop(stopCtx)
}

// runCheck validates a config document's dependencies (that every net and
// server type is registered) without starting any server, per §6's `check`
// subcommand. Opt schemas are not validated here.
func runCheck(sourceArg string, geoDBPath string) error {
	netReg, srvReg, closeGeo, err := buildRegistries(geoDBPath)
	if err != nil {
		return err
	}
	defer closeGeo()

	data, err := os.ReadFile(sourceArg)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var raw model.RawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	for id, nd := range raw.Net {
		if !netReg.HasNetType(nd.Type) {
			return fmt.Errorf("net %q: unknown type %q", id, nd.Type)
		}
	}
	for id, sd := range raw.Server {
		if !srvReg.HasServerType(sd.Type) {
			return fmt.Errorf("server %q: unknown type %q", id, sd.Type)
		}
	}

	fmt.Println("ok")
	return nil
}

// runSchema emits the configuration document's JSON Schema to path, per
// §6's `schema PATH` subcommand.
func runSchema(path string) error {
	data, err := json.MarshalIndent(configDocumentSchema, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
