package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"zigbee-ncp-host/internal/ash"
	"zigbee-ncp-host/internal/coordinator"
	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/metrics"
	"zigbee-ncp-host/internal/ncp"
	"zigbee-ncp-host/internal/store"
	"zigbee-ncp-host/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ncp-host",
	Short: "Host driver for EmberZNet Zigbee network co-processors",
	Long: `ncp-host talks ASH/EZSP to a Zigbee NCP on a serial port, forms or resumes
the configured network and exposes it over HTTP, WebSocket, MQTT and Lua scripts.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [config]",
	Short: "Start the coordinator and its HTTP and MQTT front ends",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(args)
		if err != nil {
			return err
		}
		return run(cfg, logger)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [config]",
	Short: "Reset the NCP and print its version and network state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(args)
		if err != nil {
			return err
		}
		return info(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.AddCommand(runCmd, infoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads and validates the config named by the positional argument or
// --config and installs the configured logger.
func setup(args []string) (*Config, *slog.Logger, error) {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// ncpConn is an open serial link with its driver.
type ncpConn struct {
	driver *ncp.Driver
	link   *ncp.Link
}

func (c *ncpConn) Close() error {
	return c.link.Close()
}

func openNCP(ctx context.Context, cfg *Config, logger *slog.Logger) (*ncpConn, error) {
	port, err := ncp.OpenSerial(cfg.NCP.Port, cfg.NCP.Baud)
	if err != nil {
		return nil, err
	}

	var framerOpts []ash.FramerOption
	if cfg.NCP.AckTimeout > 0 {
		framerOpts = append(framerOpts, ash.WithAckTimeout(cfg.NCP.AckTimeout))
	}
	if cfg.NCP.MaxRetransmits > 0 {
		framerOpts = append(framerOpts, ash.WithMaxRetransmits(cfg.NCP.MaxRetransmits))
	}
	driverOpts := []ncp.Option{ncp.WithFramer(ash.NewFramer(framerOpts...))}
	if cfg.NCP.ResponseTimeout > 0 {
		driverOpts = append(driverOpts, ncp.WithResponseTimeout(cfg.NCP.ResponseTimeout))
	}
	if cfg.NCP.ResetTimeout > 0 {
		driverOpts = append(driverOpts, ncp.WithResetTimeout(cfg.NCP.ResetTimeout))
	}

	driver := ncp.NewDriver(logger, driverOpts...)
	link := ncp.NewLink(port, driver, cfg.NCP.TickInterval, logger)
	if err := link.Start(ctx); err != nil {
		port.Close()
		driver.Close()
		return nil, err
	}
	logger.Info("ncp link open", "port", cfg.NCP.Port, "baud", cfg.NCP.Baud)
	return &ncpConn{driver: driver, link: link}, nil
}

func run(cfg *Config, logger *slog.Logger) error {
	logger.Info("ncp-host starting", "version", version)

	coordCfg, err := cfg.coordinatorConfig()
	if err != nil {
		return err
	}

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := openNCP(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	events := coordinator.NewEventBus(logger)
	coord := coordinator.New(conn.driver, db, events, coordCfg, coordinator.NCPConfig{
		Port: cfg.NCP.Port,
		Baud: cfg.NCP.Baud,
	}, logger)
	defer coord.Stop()

	reg := metrics.NewRegistry()
	reg.MustRegister(metrics.NewLinkCollector(conn.driver.Stats))
	eventMetrics := metrics.NewEventMetrics(reg)
	events.OnAll(func(ev coordinator.Event) {
		eventMetrics.Observe(ev.Type)
		switch ev.Type {
		case coordinator.EventDeviceJoined, coordinator.EventDeviceLeft:
			if devices, err := db.ListDevices(); err == nil {
				eventMetrics.Devices.Set(float64(len(devices)))
			}
		case coordinator.EventNetworkState:
			up := 0.0
			if coord.State() == coordinator.StateUp {
				up = 1
			}
			eventMetrics.Up.Set(up)
		}
	})

	startCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	err = coord.Start(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	if devices, err := db.ListDevices(); err == nil {
		eventMetrics.Devices.Set(float64(len(devices)))
	}

	auto, autoWebOpts := initAutomation(coord, cfg, logger)
	defer auto.Stop()

	webOpts := []web.ServerOption{web.WithVersion(version)}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	if cfg.Web.Metrics {
		webOpts = append(webOpts, web.WithMetrics(metrics.Handler(reg)))
	}
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(coord, logger, webOpts...)
	defer webServer.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	mqtt := initMQTT(coord, cfg, logger)
	defer mqtt.Stop()

	// A dead serial link ends the process so the supervisor reopens the port.
	linkDone := make(chan error, 1)
	go func() { linkDone <- conn.link.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-linkDone:
		if err != nil {
			runErr = fmt.Errorf("ncp link: %w", err)
		}
	}
	logger.Info("shutting down", "err", runErr)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	return runErr
}

// info resets the NCP, negotiates the protocol and prints what it reports,
// without forming or joining anything.
func info(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := openNCP(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	d := conn.driver

	if err := d.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	desired := cfg.NCP.ProtocolVersion
	if desired == 0 {
		desired = 13
	}
	ver, err := d.QueryVersion(ctx, desired)
	if err != nil {
		return fmt.Errorf("query version: %w", err)
	}
	if ver.ProtocolVersion != desired {
		if ver, err = d.QueryVersion(ctx, ver.ProtocolVersion); err != nil {
			return fmt.Errorf("query version: %w", err)
		}
	}
	eui, err := d.GetEUI64(ctx)
	if err != nil {
		return fmt.Errorf("get eui64: %w", err)
	}
	state, err := d.NetworkState(ctx)
	if err != nil {
		return fmt.Errorf("network state: %w", err)
	}

	ncpInfo := d.Info()
	fmt.Printf("port:             %s @ %d\n", cfg.NCP.Port, cfg.NCP.Baud)
	fmt.Printf("reset code:       %s\n", ncpInfo.ResetCode)
	fmt.Printf("protocol version: %d\n", ver.ProtocolVersion)
	fmt.Printf("stack type:       %d\n", ver.StackType)
	fmt.Printf("stack version:    %s\n", ver.StackVersionString())
	fmt.Printf("eui64:            %s\n", eui)
	fmt.Printf("network state:    %s\n", state)

	if state == ezsp.JoinedNetwork {
		nodeType, params, err := d.GetNetworkParameters(ctx)
		if err != nil {
			return fmt.Errorf("network parameters: %w", err)
		}
		fmt.Printf("node type:        %s\n", nodeType)
		fmt.Printf("channel:          %d\n", params.RadioChannel)
		fmt.Printf("pan id:           0x%04X\n", params.PanID)
		fmt.Printf("ext pan id:       %s\n", params.ExtendedPanID)
	}
	return nil
}
