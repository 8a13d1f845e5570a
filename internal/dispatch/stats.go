package dispatch

import (
	"time"

	"github.com/vaultfs/vaultfs/internal/handle"
)

// HandleStats is a snapshot of one open handle's accumulated I/O counters
// (spec.md §4.4, property P9). It is a plain copy, safe to hand back to
// callers outside the dispatcher's task loop.
type HandleStats = handle.Stats

// recordRead folds one read call into s. start/end are monotonic
// (time.Now()) readings taken immediately around the backend call, so the
// duration reflects only the backend I/O, not dispatch overhead.
func recordRead(s *handle.Stats, n int, start, end time.Time) {
	dur := end.Sub(start)
	s.ReadOps++
	s.ReadBytes += uint64(n)
	s.LastReadAt = end.UnixNano()
	s.LastReadBytes = int64(n)
	s.LastReadDur = dur
	s.ReadTimeTotal += dur
}

func recordWrite(s *handle.Stats, n int, start, end time.Time) {
	dur := end.Sub(start)
	s.WriteOps++
	s.WriteBytes += uint64(n)
	s.LastWriteAt = end.UnixNano()
	s.LastWriteBytes = int64(n)
	s.LastWriteDur = dur
	s.WriteTimeTotal += dur
}
