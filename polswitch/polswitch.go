package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaleman/polswitch/pkg/config"
	"github.com/shaleman/polswitch/pkg/ctrlApi"
	"github.com/shaleman/polswitch/pkg/l2switch"
	"github.com/shaleman/polswitch/pkg/ofctrl"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polswitch",
		Short: "OpenFlow 1.3 learning switch controller with a topology policy overlay",
		Long: `polswitch learns where hosts live, floods unknown and group destinations
and installs exact match rules for known unicast flows that the topology
policy permits. Everything else is dropped in the switch for a while.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	config.AddFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log.SetLevel(cfg.LogLevel)

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	opts := l2switch.Options{
		Transparent: cfg.Transparent,
		HoldDown:    cfg.HoldDown,
		LoopGuard:   cfg.LoopGuard,
	}
	dispatcher := l2switch.NewDispatcher(policy, opts, cfg.Ignore)
	controller := ofctrl.NewController(dispatcher)

	log.Infof("Starting polswitch: transparent=%v hold-down=%v loop-guard=%v ignoring %v",
		cfg.Transparent, cfg.HoldDown, cfg.LoopGuard, cfg.Ignore)

	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return controller.Listen(errCtx, cfg.Listen)
	})

	if cfg.ApiListen != "" {
		server := ctrlApi.NewServer(dispatcher)
		g.Go(func() error {
			return server.ListenAndServe(errCtx, cfg.ApiListen)
		})
	}

	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Errorf("polswitch: %v", err)
		os.Exit(1)
	}
}
