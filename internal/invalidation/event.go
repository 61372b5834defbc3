// Package invalidation describes dataset invalidation events.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	OpInvalidate = "invalidate"
	OpDrop       = "drop"
)

// Event asks workers to forget cached results of a dataset (invalidate) or
// the dataset itself (drop). Seq orders events of one dataset.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Dataset string    `json:"dataset"`
	TS      time.Time `json:"ts"`
	Seq     uint64    `json:"seq,omitempty"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpInvalidate, OpDrop:
	default:
		return fmt.Errorf("op must be invalidate|drop")
	}
	if strings.TrimSpace(e.Dataset) == "" {
		return fmt.Errorf("dataset is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Sequence is Seq, or the event time when the producer does not number
// its events.
func (e Event) Sequence() uint64 {
	if e.Seq != 0 {
		return e.Seq
	}
	return uint64(e.TS.UnixNano())
}
