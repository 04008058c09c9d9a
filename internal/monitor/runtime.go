package monitor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"harvest/internal/api"
)

// LocalRuntime gathers this machine's uptime, load, memory, and free space on
// the filesystem holding diskPath.
func LocalRuntime(diskPath string) (api.RuntimeStats, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return api.RuntimeStats{}, fmt.Errorf("sysinfo: %w", err)
	}

	stats := api.RuntimeStats{
		UptimeSeconds: int64(info.Uptime),
		// Sysinfo loads are fixed-point with 16 fractional bits.
		Load1:         float64(info.Loads[0]) / 65536.0,
		MemTotalBytes: uint64(info.Totalram) * uint64(info.Unit),
		MemFreeBytes:  uint64(info.Freeram) * uint64(info.Unit),
	}

	if diskPath != "" {
		var fs unix.Statfs_t
		if err := unix.Statfs(diskPath, &fs); err == nil {
			stats.DiskTotal = fs.Blocks * uint64(fs.Bsize)
			stats.DiskFree = fs.Bavail * uint64(fs.Bsize)
		}
	}
	return stats, nil
}
