package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/warden/fetch"
	"github.com/xraph/warden/id"
	"github.com/xraph/warden/job"
	"github.com/xraph/warden/queue"
)

func newPushCmd(g *globals) *cobra.Command {
	var (
		class     string
		queueName string
		args      string
		count     int
	)
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push jobs onto a public queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := g.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			var payload any
			if args != "" {
				var raw json.RawMessage
				if err := json.Unmarshal([]byte(args), &raw); err != nil {
					return fmt.Errorf("--args is not JSON: %w", err)
				}
				payload = raw
			}

			jobs := make([]*job.Job, 0, count)
			for range count {
				j, err := job.New(class, queueName, payload)
				if err != nil {
					return err
				}
				jobs = append(jobs, j)
			}
			if err := e.store.Push(ctx, jobs...); err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Fprintln(cmd.OutOrStdout(), j.JID.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&class, "class", echoClass, "job class")
	cmd.Flags().StringVar(&queueName, "queue", job.DefaultQueue, "queue name")
	cmd.Flags().StringVar(&args, "args", "", "JSON arguments")
	cmd.Flags().IntVar(&count, "count", 1, "number of copies to push")
	return cmd
}

func newPauseCmd(g *globals, pause bool) *cobra.Command {
	use, short := "pause <queue>...", "Pause queues on every process"
	if !pause {
		use, short = "unpause <queue>...", "Resume paused queues"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, queues []string) error {
			ctx := cmd.Context()
			e, err := g.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			for _, q := range queues {
				if pause {
					err = e.store.PauseQueue(ctx, q)
				} else {
					err = e.store.UnpauseQueue(ctx, q)
				}
				if err != nil {
					return err
				}
			}
			paused, err := e.store.PausedQueues(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paused: %v\n", paused)
			return nil
		},
	}
}

func newLeaderCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "leader",
		Short: "Print the current lease holder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := g.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			holder, err := e.store.LeaseHolder(ctx)
			if err != nil {
				return err
			}
			if holder == "" {
				holder = "(none)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), holder)
			return nil
		},
	}
}

func newProcessesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "processes",
		Short: "List registered heartbeat processes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := g.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ids, err := e.store.ListRegistered(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, pid := range ids {
				p, err := e.store.Process(ctx, pid)
				if err != nil {
					return err
				}
				if p == nil {
					fmt.Fprintf(out, "%s\tdead\n", pid)
					continue
				}
				fmt.Fprintf(out, "%s\talive\t%s\tbusy=%d/%d\t%v\n", pid, p.Strategy, p.Busy, p.Concurrency, p.Queues)
			}
			return nil
		},
	}
}

func newOrphansCmd(g *globals) *cobra.Command {
	var scan bool
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Return jobs held by dead heartbeat processes to their queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := g.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			delay := e.cfg.Fetch.OrphanCheckDelay
			if !scan {
				delay = 0
			}
			// A throwaway identity: it owns nothing, so every dead
			// registered process is someone else's.
			p := fetch.NewPrivate(e.store, queue.NewSelector(e.cfg.Queues, false), fetch.ModeHeartbeat,
				id.NewHeartbeatProcess().String(),
				fetch.WithLogger(e.logger),
				fetch.WithRegistry(e.store),
				fetch.WithOrphanCheckDelay(delay),
			)
			n, err := p.RecoverOrphans(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d jobs\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&scan, "scan", false, "also scan the keyspace for unregistered private lists (gated cluster-wide)")
	return cmd
}

func newPushbackCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "pushback",
		Short: "Requeue overdue jobs held by the deadline strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := g.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			d := fetch.NewDeadline(e.store, queue.NewSelector(e.cfg.Queues, false),
				fetch.WithLogger(e.logger),
				fetch.WithJobTimeout(e.cfg.Fetch.JobTimeout),
			)
			n, err := d.Pushback(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed back %d jobs\n", n)
			return nil
		},
	}
}
