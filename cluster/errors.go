package cluster

import (
	"errors"
	"fmt"
)

// ErrEmptyBatch reports a batch with no clusterable records. The batch
// yields an empty output slice and the run continues.
var ErrEmptyBatch = errors.New("batch contains no clusterable records")

// RecordError reports a record whose values cannot enter the distance
// computation. The normalizer should have excluded it; when one slips
// through, the whole batch fails and is reported, leaving other batches
// unaffected.
type RecordError struct {
	RecordID int64
	Reason   string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.RecordID, e.Reason)
}
