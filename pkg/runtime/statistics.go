/*
Copyright 2017 The Nuclio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package runtime

import (
	"sync/atomic"
)

// Statistics counts loop activity. The loop is the only writer, readers (e.g. metric sinks)
// must use DiffFrom or atomic loads
type Statistics struct {
	EventsAcquiredTotal       uint64
	EventsSkippedTotal        uint64
	EventsHandledSuccessTotal uint64
	EventsHandledFailureTotal uint64
	DurationMilliSecondsSum   uint64
	DurationMilliSecondsCount uint64
}

func (s *Statistics) DiffFrom(prev *Statistics) Statistics {
	return Statistics{
		EventsAcquiredTotal:       atomic.LoadUint64(&s.EventsAcquiredTotal) - atomic.LoadUint64(&prev.EventsAcquiredTotal),
		EventsSkippedTotal:        atomic.LoadUint64(&s.EventsSkippedTotal) - atomic.LoadUint64(&prev.EventsSkippedTotal),
		EventsHandledSuccessTotal: atomic.LoadUint64(&s.EventsHandledSuccessTotal) - atomic.LoadUint64(&prev.EventsHandledSuccessTotal),
		EventsHandledFailureTotal: atomic.LoadUint64(&s.EventsHandledFailureTotal) - atomic.LoadUint64(&prev.EventsHandledFailureTotal),
		DurationMilliSecondsSum:   atomic.LoadUint64(&s.DurationMilliSecondsSum) - atomic.LoadUint64(&prev.DurationMilliSecondsSum),
		DurationMilliSecondsCount: atomic.LoadUint64(&s.DurationMilliSecondsCount) - atomic.LoadUint64(&prev.DurationMilliSecondsCount),
	}
}

// Snapshot returns a copy of the statistics, loaded atomically field by field
func (s *Statistics) Snapshot() Statistics {
	return s.DiffFrom(&Statistics{})
}
