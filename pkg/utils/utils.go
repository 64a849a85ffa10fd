package utils

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// FormatHashrate formats a hashrate value into a human-readable string
func FormatHashrate(hashrate float64) string {
	if hashrate < 1000 {
		return fmt.Sprintf("%.2f H/s", hashrate)
	} else if hashrate < 1000000 {
		return fmt.Sprintf("%.2f KH/s", hashrate/1000)
	} else if hashrate < 1000000000 {
		return fmt.Sprintf("%.2f MH/s", hashrate/1000000)
	} else {
		return fmt.Sprintf("%.2f GH/s", hashrate/1000000000)
	}
}

// FormatDuration formats a duration into a human-readable string
func FormatDuration(d time.Duration) string {
	if d.Hours() >= 24 {
		days := int(d.Hours() / 24)
		hours := int(d.Hours()) % 24
		return fmt.Sprintf("%dd %dh", days, hours)
	} else if d.Hours() >= 1 {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else if d.Minutes() >= 1 {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

// ParseUint32 parses a decimal or 0x-prefixed hex string, as used for
// compact bits and header times on the command line
func ParseUint32(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid 32-bit value %q: %w", s, err)
	}
	return uint32(v), nil
}

// DefaultThreads returns the number of physical cores, falling back to the
// logical CPU count. One QHash instance holds a 1 MiB state vector, so the
// miner defaults to one instance per physical core.
func DefaultThreads() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// GetSystemInfo returns basic system information
func GetSystemInfo() map[string]interface{} {
	info := map[string]interface{}{
		"os":          runtime.GOOS,
		"arch":        runtime.GOARCH,
		"cpu_count":   runtime.NumCPU(),
		"go_version":  runtime.Version(),
		"max_threads": runtime.GOMAXPROCS(0),
	}
	if cores, err := cpu.Counts(false); err == nil {
		info["physical_cores"] = cores
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info["cpu_model"] = infos[0].ModelName
		info["cpu_mhz"] = infos[0].Mhz
	}
	return info
}

// EnsureDirectoryExists ensures that a directory exists, creating it if necessary
func EnsureDirectoryExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
