//go:build linux || darwin

package janitor

import (
	"time"

	"golang.org/x/sys/unix"
)

// changeTime returns the inode change time, the closest thing to a creation
// time for files that are written once. Darwin's Btim is left unused so both
// platforms age segments by the same clock.
func changeTime(path string) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, err
	}
	return time.Unix(st.Ctim.Unix()), nil
}
