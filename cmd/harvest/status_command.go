package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"harvest/internal/api"
	"harvest/internal/client"
	"harvest/internal/monitor"
	"harvest/internal/stagestore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var clusterView bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon or cluster status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clusterView {
				return runClusterStatus(cmd, ctx, jsonOutput)
			}
			return runDaemonStatus(cmd, ctx, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&clusterView, "cluster", false, "Probe every configured machine")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit raw JSON instead of tables")
	return cmd
}

func runDaemonStatus(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	return ctx.withClient(func(cl *client.Client) error {
		status, err := cl.Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, status)
		}
		colorize := shouldColorize(out)
		for _, line := range renderSectionHeader("Daemon", colorize) {
			fmt.Fprintln(out, line)
		}
		printDaemonStatus(out, status, colorize)
		return nil
	})
}

func runClusterStatus(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if len(cfg.Machines) == 0 {
		return fmt.Errorf("no machines configured: add [[machines]] entries to probe a cluster")
	}

	var stages *stagestore.Store
	if strings.TrimSpace(cfg.Paths.StoreDir) != "" {
		stages = stagestore.New(cfg)
	}
	view := monitor.New(cfg, stages).Snapshot(cmd.Context())

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, view)
	}

	colorize := shouldColorize(out)
	for _, machine := range view.Machines {
		for _, line := range renderSectionHeader(machine.Name, colorize) {
			fmt.Fprintln(out, line)
		}
		printMachineStatus(out, machine, colorize)
		fmt.Fprintln(out)
	}
	if view.Stages != nil {
		for _, line := range renderSectionHeader("Shared store", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, renderStageDepths(view.Stages))
	}
	return nil
}

func printMachineStatus(out io.Writer, machine monitor.MachineStatus, colorize bool) {
	if !machine.Reachable {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusError, machine.Error, colorize))
		return
	}
	printDaemonStatus(out, machine.Status, colorize)
}

func printDaemonStatus(out io.Writer, status *api.DaemonStatus, colorize bool) {
	if status == nil {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "no status reported", colorize))
		return
	}

	daemonKind := statusOK
	daemonMsg := fmt.Sprintf("running on %s (pid %d)", status.Host, status.PID)
	if !status.Running {
		daemonKind = statusWarn
		daemonMsg = "not running"
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))

	workflowKind := statusOK
	workflowMsg := "lanes running"
	if !status.Workflow.Running {
		workflowKind = statusWarn
		workflowMsg = "stopped"
	}
	if status.Workflow.LastError != "" {
		workflowKind = statusError
		workflowMsg = status.Workflow.LastError
	}
	fmt.Fprintln(out, renderStatusLine("Workflow", workflowKind, workflowMsg, colorize))

	if status.Runtime != nil {
		rt := status.Runtime
		fmt.Fprintln(out, renderStatusLine("Uptime", statusInfo, formatUptime(rt.UptimeSeconds), colorize))
		fmt.Fprintln(out, renderStatusLine("Load", statusInfo, fmt.Sprintf("%.2f", rt.Load1), colorize))
		fmt.Fprintln(out, renderStatusLine("Memory free", statusInfo,
			fmt.Sprintf("%s of %s", formatBytes(rt.MemFreeBytes), formatBytes(rt.MemTotalBytes)), colorize))
		fmt.Fprintln(out, renderStatusLine("Disk free", statusInfo,
			fmt.Sprintf("%s of %s", formatBytes(rt.DiskFree), formatBytes(rt.DiskTotal)), colorize))
	}

	if status.Library != nil {
		fmt.Fprintln(out, renderStatusLine("Library", statusInfo,
			fmt.Sprintf("%d files, %d indexed, %d chunks",
				status.Library.Files, status.Library.Indexed, status.Library.Chunks), colorize))
	}

	if len(status.Workflow.QueueStats) > 0 {
		fmt.Fprintln(out, renderQueueStats(status.Workflow.QueueStats))
	}
	if status.Stages != nil {
		fmt.Fprintln(out, renderStageDepths(status.Stages))
	}
}

func renderStageDepths(depths *api.StageDepths) string {
	rows := make([][]string, 0, 4+len(depths.Raw))
	for _, source := range sortedKeys(depths.Raw) {
		rows = append(rows, []string{"raw/" + source, strconv.Itoa(depths.Raw[source])})
	}
	rows = append(rows,
		[]string{"processed", strconv.Itoa(depths.Processed)},
		[]string{"ready", strconv.Itoa(depths.Ready)},
		[]string{"imported", strconv.Itoa(depths.Imported)},
	)
	for _, source := range sortedKeys(depths.Errors) {
		rows = append(rows, []string{"errors/" + source, strconv.Itoa(depths.Errors[source])})
	}
	return renderTable([]string{"Stage", "Files"}, rows, []columnAlignment{alignLeft, alignRight})
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
