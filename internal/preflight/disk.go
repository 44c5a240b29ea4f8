package preflight

import (
	"fmt"
	"syscall"

	"github.com/dustin/go-humanize"
)

// Free space thresholds for an embedded data_dir. The sqlite catalog is
// tiny; the bleve segments of each index dominate and merges briefly need
// room for a second copy.
const (
	MinStoreFreeBytes     uint64 = 256 << 20
	WarnStoreFreeBytes    uint64 = 1 << 30
	segmentMergeHeadroomX        = 2
)

// CheckDiskSpace reports the free space of the filesystem holding dir.
func (c *Checker) CheckDiskSpace(dir string) CheckResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return CheckResult{
			Name:     "disk_space",
			Required: true,
			Status:   StatusFail,
			Message:  "cannot stat " + dir,
			Details:  err.Error(),
		}
	}
	return diskSpaceResult(stat.Bavail * uint64(stat.Bsize))
}

// diskSpaceResult grades free bytes against the embedded store thresholds.
func diskSpaceResult(free uint64) CheckResult {
	r := CheckResult{
		Name:     "disk_space",
		Required: true,
		Status:   StatusPass,
		Message:  fmt.Sprintf("%s free for the embedded store", humanize.IBytes(free)),
	}
	switch {
	case free < MinStoreFreeBytes:
		r.Status = StatusFail
		r.Details = fmt.Sprintf("at least %s is needed under connect.data_dir", humanize.IBytes(MinStoreFreeBytes))
	case free < WarnStoreFreeBytes:
		r.Status = StatusWarn
		r.Details = fmt.Sprintf("segment merges need up to %dx an index's size; keep %s free",
			segmentMergeHeadroomX, humanize.IBytes(WarnStoreFreeBytes))
	}
	return r
}
