package service

import "github.com/dyike/cortexmarket/models"

// Source tells where the records of a Result came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceProvider Source = "provider"
	SourceStore    Source = "store"
	SourceNone     Source = "none"
)

// Result is a read that may have degraded. Err carries the upstream failure
// behind a cache/store/empty answer; callers are free to ignore it.
type Result[R models.Record] struct {
	Records []R
	Source  Source
	Err     error
}

func (r Result[R]) Empty() bool { return len(r.Records) == 0 }

// Degraded reports whether the answer did not come from a fresh provider call
// or cache hit.
func (r Result[R]) Degraded() bool {
	return r.Source == SourceStore || r.Source == SourceNone
}
