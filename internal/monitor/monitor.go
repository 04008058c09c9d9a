package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"harvest/internal/api"
	"harvest/internal/config"
	"harvest/internal/stagestore"
)

const defaultProbeTimeout = 5 * time.Second

// MachineStatus is one machine's probe outcome.
type MachineStatus struct {
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Reachable bool              `json:"reachable"`
	Error     string            `json:"error,omitempty"`
	Status    *api.DaemonStatus `json:"status,omitempty"`
}

// ClusterView aggregates machine probes with shared-store stage depths.
type ClusterView struct {
	Machines []MachineStatus  `json:"machines"`
	Stages   *api.StageDepths `json:"stages,omitempty"`
}

// Monitor probes configured machines for a read-only cluster view.
type Monitor struct {
	machines []config.Machine
	stages   *stagestore.Store
	client   *http.Client
}

// New constructs a cluster monitor. The stage store may be nil when the
// shared store is not mounted locally.
func New(cfg *config.Config, stages *stagestore.Store) *Monitor {
	return &Monitor{
		machines: cfg.Machines,
		stages:   stages,
		client:   &http.Client{},
	}
}

// Snapshot probes every machine concurrently. Each probe carries its own
// timeout, so one dead host never stalls the view.
func (m *Monitor) Snapshot(ctx context.Context) ClusterView {
	view := ClusterView{Machines: make([]MachineStatus, len(m.machines))}

	var wg sync.WaitGroup
	wg.Add(len(m.machines))
	for i, machine := range m.machines {
		go func(i int, machine config.Machine) {
			defer wg.Done()
			view.Machines[i] = m.probe(ctx, machine)
		}(i, machine)
	}
	wg.Wait()

	sort.Slice(view.Machines, func(i, j int) bool {
		return view.Machines[i].Name < view.Machines[j].Name
	})

	if m.stages != nil {
		if depths, err := m.stages.Depths(); err == nil {
			stages := api.FromDepths(depths)
			view.Stages = &stages
		}
	}
	return view
}

func (m *Monitor) probe(ctx context.Context, machine config.Machine) MachineStatus {
	status := MachineStatus{Name: machine.Name, URL: machine.URL}

	timeout := defaultProbeTimeout
	if machine.ProbeTimeoutSeconds > 0 {
		timeout = time.Duration(machine.ProbeTimeoutSeconds) * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(machine.URL, "/") + "/api/status"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	if token := strings.TrimSpace(machine.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		status.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return status
	}

	var daemonStatus api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&daemonStatus); err != nil {
		status.Error = fmt.Sprintf("decode status: %v", err)
		return status
	}
	status.Reachable = true
	status.Status = &daemonStatus
	return status
}
