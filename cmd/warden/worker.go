package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/xraph/warden/cluster/k8s"
	"github.com/xraph/warden/engine"
	"github.com/xraph/warden/job"
)

// echoClass is the handler every CLI worker carries, for smoke tests.
const echoClass = "warden.Echo"

func newWorkerCmd(g *globals) *cobra.Command {
	var k8sNamespace string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker process until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			e, err := g.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			opts := []engine.Option{
				engine.WithLogger(e.logger),
				engine.OnLeader(func(context.Context) {
					e.logger.Info("leading the cluster")
				}),
			}
			if k8sNamespace != "" {
				rc, err := rest.InClusterConfig()
				if err != nil {
					return fmt.Errorf("k8s config: %w", err)
				}
				cs, err := kubernetes.NewForConfig(rc)
				if err != nil {
					return fmt.Errorf("k8s client: %w", err)
				}
				opts = append(opts, engine.WithLeaseStore(k8s.New(cs, k8sNamespace, k8s.WithLogger(e.logger))))
			}

			eng, err := engine.New(e.store, e.cfg, opts...)
			if err != nil {
				return err
			}
			engine.Register(eng, echoJob(e.logger))

			if err := eng.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			// Stop gets a fresh context; ctx is already cancelled.
			return eng.Stop(context.WithoutCancel(ctx))
		},
	}
	cmd.Flags().StringVar(&k8sNamespace, "k8s-lease-namespace", "", "elect leaders through a coordination/v1 Lease in this namespace")
	return cmd
}

func echoJob(logger *slog.Logger) *job.Definition[json.RawMessage] {
	return job.NewDefinition(echoClass, func(_ context.Context, args json.RawMessage) error {
		logger.Info("echo", slog.String("args", string(args)))
		return nil
	})
}
