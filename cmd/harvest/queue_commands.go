package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"harvest/internal/api"
	"harvest/internal/client"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queues",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueAllCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var kindFilter string
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				resp, err := cl.ListQueue(cmd.Context(), kindFilter, statusFilters)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "Queue is empty")
				} else {
					rows := make([][]string, 0, len(resp.Jobs))
					for _, job := range resp.Jobs {
						rows = append(rows, []string{
							strconv.FormatInt(job.ID, 10),
							job.Kind,
							truncate(job.TargetRef, 48),
							job.Status,
							strconv.Itoa(job.AttemptCount),
							job.LeaseHost,
							job.UpdatedAt,
						})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"ID", "Kind", "Target", "Status", "Attempts", "Lease", "Updated"},
						rows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					))
				}
				if statsTable := renderQueueStats(resp.Stats); statsTable != "" {
					fmt.Fprintln(out, statsTable)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kindFilter, "kind", "k", "", "Filter by job kind (index or transcribe)")
	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by job status (repeatable)")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var model string
	var priority int

	cmd := &cobra.Command{
		Use:   "add <target-ref>",
		Short: "Queue one job for a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				req := api.EnqueueRequest{
					TargetRef: args[0],
					Kind:      kind,
					Model:     model,
				}
				if cmd.Flags().Changed("priority") {
					req.Priority = &priority
				}
				resp, err := cl.Enqueue(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Status == "duplicate" {
					fmt.Fprintf(out, "Already queued as job %d\n", resp.JobID)
					return nil
				}
				fmt.Fprintf(out, "Queued job %d\n", resp.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Job kind (default index)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Embedding or transcription model override")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Job priority (lower runs first)")
	return cmd
}

func newQueueAllCommand(ctx *commandContext) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Queue index jobs for every unindexed catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				resp, err := cl.EnqueueAll(cmd.Context(), model)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d jobs\n", resp.Added)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Embedding model override")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withClient(func(cl *client.Client) error {
				if err := cl.RemoveJob(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %d\n", id)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Return a failed job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withClient(func(cl *client.Client) error {
				if err := cl.RetryJob(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d queued for retry\n", id)
				return nil
			})
		},
	}
}

func renderQueueStats(stats map[string]api.QueueStats) string {
	if len(stats) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(stats))
	for kind := range stats {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		s := stats[kind]
		rows = append(rows, []string{
			kind,
			strconv.Itoa(s.Pending),
			strconv.Itoa(s.Processing),
			strconv.Itoa(s.Completed),
			strconv.Itoa(s.Failed),
		})
	}
	return renderTable(
		[]string{"Kind", "Pending", "Processing", "Completed", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
