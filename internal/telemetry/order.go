package telemetry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SortKey is the load-bearing ordering key of activity records.
type SortKey struct {
	CreationIndex int64
	MetricsID     int64
	Timestamp     float64
}

// Compare orders keys by creation index, then metrics id, then timestamp.
func (k SortKey) Compare(o SortKey) int {
	if c := cmp.Compare(k.CreationIndex, o.CreationIndex); c != 0 {
		return c
	}
	if c := cmp.Compare(k.MetricsID, o.MetricsID); c != 0 {
		return c
	}
	return cmp.Compare(k.Timestamp, o.Timestamp)
}

// Sorted returns a stably sorted copy of records. The input is not modified.
func Sorted(records []Record) []Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b Record) int {
		return a.Key().Compare(b.Key())
	})
	return out
}

// IsSorted reports whether records are already in key order.
func IsSorted(records []Record) bool {
	return slices.IsSortedFunc(records, func(a, b Record) int {
		return a.Key().Compare(b.Key())
	})
}

// HasBuggyCreationIndex reports whether the record comes from a client
// version known to emit a zero creation index, which makes it unorderable.
func HasBuggyCreationIndex(r *Record, buggyVersions []string) bool {
	if r.CreationIndex != 0 {
		return false
	}
	for _, v := range buggyVersions {
		if v != "" && strings.HasPrefix(r.AppVersion, v) {
			return true
		}
	}
	return false
}

// InputErrorCode categorizes fatal input errors.
type InputErrorCode string

const (
	ErrCodeUnorderable InputErrorCode = "UNORDERABLE_RECORD"
	ErrCodeBadLevel    InputErrorCode = "BAD_LEVEL"
	ErrCodeBadContext  InputErrorCode = "BAD_CONTEXT"
	ErrCodeBadOrdering InputErrorCode = "BAD_ORDERING_KEY"
	ErrCodeBadRow      InputErrorCode = "BAD_ROW"
	ErrCodeBadMetric   InputErrorCode = "BAD_METRIC"
)

// InputError is a fatal input error. It aborts the whole batch and names the
// offending record or source line.
type InputError struct {
	Code     InputErrorCode
	Message  string
	RecordID string
	Player   string
	Line     int
}

func (e *InputError) Error() string {
	var where []string
	if e.Line > 0 {
		where = append(where, fmt.Sprintf("line=%d", e.Line))
	}
	if e.RecordID != "" {
		where = append(where, "record="+e.RecordID)
	}
	if e.Player != "" {
		where = append(where, "player="+e.Player)
	}
	if len(where) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(where, ", "))
}

// IsInputError reports whether err wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
