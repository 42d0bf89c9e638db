package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/netmock/internal/errx"
	"github.com/jingkaihe/netmock/pkg/controller"
	"github.com/jingkaihe/netmock/pkg/engine"
	"github.com/jingkaihe/netmock/pkg/logging"
	mocknet "github.com/jingkaihe/netmock/pkg/net"
	"github.com/jingkaihe/netmock/pkg/policy"
)

var serveCmd = &cobra.Command{
	Use:   "serve <mock-file>",
	Short: "Serve mocks as an origin server or forward proxy",
	Long: `Serve the handlers defined in a mock file.

Requests addressed to the server itself are matched against the handlers and,
when passed through, forwarded to --upstream. Requests sent through the server
as a forward proxy are passed through to their original destination.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:9090", "Address to listen on")
	serveCmd.Flags().String("upstream", "", "Origin receiving passthrough traffic addressed to the server")
	serveCmd.Flags().String("base-url", "", "Base URL for relative handler paths (overrides the mock file)")
	serveCmd.Flags().String("on-unhandled", "", "Unhandled strategy: bypass, warn or error (overrides the mock file)")
	serveCmd.Flags().Bool("quiet", false, "Do not log every mocked response")
	serveCmd.Flags().StringSlice("allow-host", nil, "Host passthrough traffic may reach (can be repeated)")
	serveCmd.Flags().Bool("block-private-ips", false, "Refuse passthrough traffic to private addresses")
	serveCmd.Flags().String("events-file", "", "Append life-cycle events to this JSON-L file")
	serveCmd.Flags().String("journal", "", "Record life-cycle events in this SQLite database")
	serveCmd.Flags().String("run-id", "", "Run identifier stamped on recorded events (default: random)")

	viper.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("serve.upstream", serveCmd.Flags().Lookup("upstream"))
	viper.BindPFlag("serve.base-url", serveCmd.Flags().Lookup("base-url"))
	viper.BindPFlag("serve.on-unhandled", serveCmd.Flags().Lookup("on-unhandled"))
	viper.BindPFlag("serve.quiet", serveCmd.Flags().Lookup("quiet"))
	viper.BindPFlag("serve.allow-host", serveCmd.Flags().Lookup("allow-host"))
	viper.BindPFlag("serve.block-private-ips", serveCmd.Flags().Lookup("block-private-ips"))
	viper.BindPFlag("serve.events-file", serveCmd.Flags().Lookup("events-file"))
	viper.BindPFlag("serve.journal", serveCmd.Flags().Lookup("journal"))
	viper.BindPFlag("serve.run-id", serveCmd.Flags().Lookup("run-id"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, closer, err := newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	f, hs, err := loadMocks(args[0], logger)
	if err != nil {
		return err
	}
	if v := viper.GetString("serve.base-url"); v != "" {
		f.BaseURL = v
	}
	if v := viper.GetString("serve.on-unhandled"); v != "" {
		f.OnUnhandled = v
	}
	if viper.GetBool("serve.quiet") {
		f.Quiet = true
	}

	events, err := openEvents()
	if err != nil {
		return err
	}
	defer events.Close()

	ctrl, err := controller.New(hs...)
	if err != nil {
		return errx.Wrap(ErrBuildEngine, err)
	}
	eng, err := engine.New(engine.Config{
		Handlers:    ctrl,
		BaseURL:     f.BaseURL,
		OnUnhandled: f.OnUnhandled,
		Quiet:       f.Quiet,
		Logger:      logger,
	})
	if err != nil {
		return errx.Wrap(ErrBuildEngine, err)
	}
	detach := logging.NewRecorder(events, logger).Attach(eng.Emitter())
	defer detach()

	srv, err := mocknet.NewServer(mocknet.ServerConfig{
		Engine:   eng,
		Upstream: viper.GetString("serve.upstream"),
		Gate:     newGate(f.Gate, logger, events),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	addr := viper.GetString("serve.listen")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errx.Wrap(ErrListen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving mocks",
		"addr", ln.Addr().String(),
		"handlers", len(hs),
		"on_unhandled", f.OnUnhandled,
		"run_id", events.RunID(),
	)
	return srv.Serve(ctx, ln)
}

// openEvents builds the event emitter from the configured sinks. With no
// sinks configured, events are dropped.
func openEvents() (*logging.Emitter, error) {
	var sinks []logging.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	if path := viper.GetString("serve.events-file"); path != "" {
		sinks = append(sinks, logging.NewRotatingJSONLWriter(path, logging.RotationConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
		}))
	}
	if path := viper.GetString("serve.journal"); path != "" {
		sink, err := logging.OpenSQLiteSink(path)
		if err != nil {
			closeAll()
			return nil, errx.Wrap(ErrOpenEventSink, err)
		}
		sinks = append(sinks, sink)
	}

	return logging.NewEmitter(logging.EmitterConfig{
		RunID:   viper.GetString("serve.run-id"),
		Service: "netmock",
	}, sinks...), nil
}

// newGate merges the gate settings of the mock file with the command line.
// It returns nil when nothing restricts passthrough traffic.
func newGate(fromFile *policy.GateConfig, logger *slog.Logger, events *logging.Emitter) *policy.HostGate {
	var cfg policy.GateConfig
	if fromFile != nil {
		cfg = *fromFile
	}
	if viper.GetBool("serve.block-private-ips") {
		cfg.BlockPrivateIPs = true
	}
	extra := viper.GetStringSlice("serve.allow-host")
	if len(cfg.AllowedHosts) == 0 && len(extra) == 0 && !cfg.BlockPrivateIPs {
		return nil
	}

	gate := policy.NewHostGate(cfg, logger, events)
	gate.AddAllowedHosts(extra...)
	return gate
}
