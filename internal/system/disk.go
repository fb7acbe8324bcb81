// Package system reports host facts the doctor command checks.
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Usage is the space on the filesystem holding a path.
type Usage struct {
	Total     uint64
	Used      uint64
	Available uint64
}

// UsedPercent returns the percentage of disk space used (0-100)
func (u Usage) UsedPercent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Total) * 100
}

// DiskUsage returns total, used and available space for path. A path that
// does not exist yet is measured at its nearest existing parent.
func DiskUsage(path string) (Usage, error) {
	p := nearestExisting(path)
	var stat syscall.Statfs_t
	if err := syscall.Statfs(p, &stat); err != nil {
		return Usage{}, fmt.Errorf("failed to get disk usage for %s: %w", path, err)
	}
	bs := uint64(stat.Bsize)
	u := Usage{
		Total:     stat.Blocks * bs,
		Available: stat.Bavail * bs,
	}
	u.Used = u.Total - stat.Bfree*bs
	return u, nil
}

// IsLowDiskSpace returns true if disk usage is above the threshold percentage
func IsLowDiskSpace(path string, thresholdPercent float64) (bool, error) {
	u, err := DiskUsage(path)
	if err != nil {
		return false, err
	}
	return u.UsedPercent() >= thresholdPercent, nil
}

func nearestExisting(p string) string {
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
