package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/call-screen/internal/calllog"
	"github.com/rcliao/call-screen/internal/display"
	"github.com/rcliao/call-screen/internal/screening"
	"github.com/rcliao/call-screen/internal/server"
	"github.com/rcliao/call-screen/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the screening HTTP and WebSocket server",
		Run:   runServe,
	}

	cmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	cmd.Flags().String("policy", "", "Response policy: await or immediate (default from config)")
	cmd.Flags().String("redis", "", "Redis address for the lookup cache (default from config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("policy"); v != "" {
		cfg.Screening.Policy = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if err := cfg.Validate(); err != nil {
		exitErr("config", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	opener := store.NewOpener(getDBPath(), logger.With("component", "store"))
	defer opener.Close()

	stream := calllog.NewStream(logger.With("component", "calllog"))
	defer stream.Close()

	presenter := display.NewPresenter(display.StaticPermission(cfg.PermissionGranted))
	defer presenter.Close()

	// Screening keeps answering when the store cannot be opened; the
	// Opener retries on every lookup.
	if _, err := opener.Open(ctx); err != nil {
		logger.Error("reputation store unavailable", "path", opener.Path(), "error", err)
		presenter.Fail(err.Error())
	} else {
		presenter.Attach(stream)
	}

	var callers store.Reputation = opener
	if addr := cfg.Cache.RedisAddr; addr != "" {
		client, err := store.DialRedis(ctx, addr)
		if err != nil {
			logger.Warn("lookup cache disabled", "redis", addr, "error", err)
		} else {
			defer client.Close()
			callers = store.NewCachedStore(opener, client, cfg.Cache.TTL, logger.With("component", "cache"))
			logger.Info("lookup cache enabled", "redis", addr, "ttl", cfg.Cache.TTL)
		}
	}

	engine := screening.New(callers, stream, cfg.EngineOptions(logger.With("component", "screening")))
	srv := server.New(engine, stream, presenter, callers, logger.With("component", "http"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, cfg.Listen)
	})
	g.Go(func() error {
		<-ctx.Done()
		engine.Close()
		return nil
	})

	logger.Info("call screening started",
		"db", opener.Path(),
		"listen", cfg.Listen,
		"policy", engine.Policy())

	if err := g.Wait(); err != nil {
		exitErr("serve", err)
	}
	logger.Info("call screening stopped")
}

