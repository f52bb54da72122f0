// Package tuning adjusts kernel tunables for a mounted filesystem. It is
// a best-effort post-mount step, orthogonal to filesystem correctness;
// failures are reported, never fatal.
package tuning

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ApplyReadAhead sets the kernel read-ahead for the device backing
// mountPoint by writing the per-device backing-dev-info sysfs knob.
// Requires privileges; callers should only log the returned error.
func ApplyReadAhead(mountPoint string, kb int) error {
	if kb <= 0 {
		return nil
	}

	var st unix.Stat_t
	if err := unix.Stat(mountPoint, &st); err != nil {
		return fmt.Errorf("stat %s: %w", mountPoint, err)
	}

	dev := uint64(st.Dev)
	path := fmt.Sprintf("/sys/class/bdi/%d:%d/read_ahead_kb",
		unix.Major(dev), unix.Minor(dev))

	if err := os.WriteFile(path, []byte(strconv.Itoa(kb)), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
