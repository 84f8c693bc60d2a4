// Package hostinfo describes the machine the CLI runs on, so that a login
// node can register itself as a Machine.
package hostinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Info is a snapshot of host and CPU facts.
type Info struct {
	Hostname         string `json:"hostname" yaml:"hostname"`
	OS               string `json:"os" yaml:"os"`
	Platform         string `json:"platform" yaml:"platform"`
	PlatformVersion  string `json:"platform_version" yaml:"platform_version"`
	KernelVersion    string `json:"kernel_version" yaml:"kernel_version"`
	Arch             string `json:"arch" yaml:"arch"`
	Virtualization   string `json:"virtualization,omitempty" yaml:"virtualization,omitempty"`
	CPUVendor        string `json:"cpu_vendor" yaml:"cpu_vendor"`
	CPUModel         string `json:"cpu_model" yaml:"cpu_model"`
	CPUCores         int    `json:"cpu_cores" yaml:"cpu_cores"`
	MemoryTotalBytes uint64 `json:"memory_total_bytes" yaml:"memory_total_bytes"`
}

// Probe gathers host information. CPU and memory details are best effort:
// a failure to read them leaves the fields empty.
func Probe(ctx context.Context) (*Info, error) {
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	info := &Info{
		Hostname:        h.Hostname,
		OS:              h.OS,
		Platform:        h.Platform,
		PlatformVersion: h.PlatformVersion,
		KernelVersion:   h.KernelVersion,
		Arch:            h.KernelArch,
		Virtualization:  h.VirtualizationSystem,
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUVendor = cpus[0].VendorID
		info.CPUModel = strings.TrimSpace(cpus[0].ModelName)
	}

	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotalBytes = vm.Total
	}

	return info, nil
}

// Architecture summarizes the CPU for a Machine record, e.g.
// "x86_64; AMD EPYC 7763 64-Core Processor (128 cores)".
func (i *Info) Architecture() string {
	parts := make([]string, 0, 2)

	if i.Arch != "" {
		parts = append(parts, i.Arch)
	}

	if i.CPUModel != "" {
		model := i.CPUModel
		if i.CPUCores > 0 {
			model = fmt.Sprintf("%s (%d cores)", model, i.CPUCores)
		}

		parts = append(parts, model)
	}

	if len(parts) == 0 {
		return "unknown"
	}

	return strings.Join(parts, "; ")
}

// Notes renders the remaining facts as a one-line note.
func (i *Info) Notes() string {
	parts := make([]string, 0, 3)

	if i.Platform != "" {
		parts = append(parts, strings.TrimSpace(i.Platform+" "+i.PlatformVersion))
	}

	if i.KernelVersion != "" {
		parts = append(parts, "kernel "+i.KernelVersion)
	}

	if i.MemoryTotalBytes > 0 {
		parts = append(parts, units.BytesSize(float64(i.MemoryTotalBytes))+" memory")
	}

	return "Registered from " + i.Hostname + ": " + strings.Join(parts, ", ")
}
