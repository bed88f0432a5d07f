//go:build !(linux || darwin)

package janitor

import (
	"os"
	"time"
)

func changeTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
