// Command gateway runs the FB-Bus protocol engine: it loads the YAML
// connector configuration, wires the registry/transport/handler/pairing
// stack into a Connector, and runs until asked to stop.
//
// Grounded on the teacher's service-goroutine bootstrap shape (construct
// the bus, start each service, wait for a shutdown signal, tear down in
// reverse) with the embedded HAL business logic replaced end to end.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fbbus-gateway/bus"
	"fbbus-gateway/internal/config"
	"fbbus-gateway/internal/fbbus"
	"fbbus-gateway/internal/logging"
	"fbbus-gateway/internal/metrics"
	"fbbus-gateway/internal/upstream"
	"fbbus-gateway/internal/upstream/memstore"
)

const shutdownTimeout = 3 * time.Second

func main() {
	var (
		configPath    string
		connectorName string
		devMode       bool
		metricsAddr   string
	)

	root := &cobra.Command{
		Use:   "gateway",
		Short: "run the FB-Bus protocol engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, connectorName, devMode, metricsAddr)
		},
	}
	root.Flags().StringVar(&configPath, "config", "/etc/fbbus-gateway/config.yaml", "gateway config file")
	root.Flags().StringVar(&connectorName, "connector", "fbbus", "connector name within the config's connectors map")
	root.Flags().BoolVar(&devMode, "dev", false, "use a human-readable development logger")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9464", "address to serve /metrics on")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, connectorName string, devMode bool, metricsAddr string) error {
	newLogger := logging.New
	if devMode {
		newLogger = logging.NewDevelopment
	}
	log, sync, err := newLogger()
	if err != nil {
		return fmt.Errorf("gateway: build logger: %w", err)
	}
	defer sync()

	cc, err := config.Connector(configPath, connectorName, nil)
	if err != nil {
		return fmt.Errorf("gateway: load config: %w", err)
	}
	sp, err := config.SerialParamsOf(cc)
	if err != nil {
		return fmt.Errorf("gateway: decode serial params: %w", err)
	}

	m := metrics.New()
	srv := &http.Server{Addr: metricsAddr, Handler: m.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("gateway: metrics server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	store := memstore.New()
	bridge := upstream.NewStorageBridge(store, m.StorageDropped, log)
	go bridge.Run(ctx)

	c := fbbus.New(fbbus.Options{
		Port:    sp.SerialInterface,
		Baud:    sp.BaudRate,
		Log:     log,
		Storage: bridge,
		Cache:   store,
		Metrics: m,
	})

	gatewayBus := bus.NewBus(64)
	configConn := gatewayBus.NewConnection("config")
	cfgSvc := config.NewService(nil)
	go func() {
		if err := cfgSvc.Start(config.WithPath(ctx, configPath), configConn); err != nil {
			log.Warnf("gateway: config publish: %v", err)
		}
	}()

	if err := c.Open(ctx); err != nil {
		return fmt.Errorf("gateway: open transport: %w", err)
	}
	log.Infof("gateway: running (port=%s baud=%d)", sp.SerialInterface, sp.BaudRate)
	c.EnableSearching()

	<-ctx.Done()
	log.Infof("gateway: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.Close(shutdownCtx)
	return nil
}
