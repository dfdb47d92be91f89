//go:build unix

package thumbnail

import (
	"math"

	"golang.org/x/sys/unix"
)

// processMemoryLimit returns the RLIMIT_AS soft limit, or 0 when it is
// unlimited or cannot be read.
func processMemoryLimit() int64 {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &rl); err != nil {
		return 0
	}
	if uint64(rl.Cur) >= math.MaxInt64 {
		return 0
	}
	return int64(rl.Cur)
}
