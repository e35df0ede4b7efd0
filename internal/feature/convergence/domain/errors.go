// Package domain defines domain-level errors for the convergence feature.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for a convergence run.
// Fatal errors abort the run before anything is written (integrity) or roll the write back (sink).
var (
	// ErrDataIntegrity is matched by every *DataIntegrityError.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrSink is matched by every *SinkError.
	ErrSink = errors.New("signal sink failure")

	// ErrRunInProgress is returned when another run holds the lock for the same symbol and timeframe.
	ErrRunInProgress = errors.New("a run for this symbol and timeframe is already in progress")

	// ErrInvalidPair is returned when symbol or timeframe is empty.
	ErrInvalidPair = errors.New("symbol and timeframe are required")
)

// DataIntegrityError reports a malformed record in one of the input collections.
type DataIntegrityError struct {
	Collection string // key_candles, accumulation_zones or mini_trends
	ID         int64  // record id when the collection has one
	Index      int    // candle index or interval start
	Reason     string
}

func (e *DataIntegrityError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s: %s id=%d: %s", ErrDataIntegrity, e.Collection, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s: %s index=%d: %s", ErrDataIntegrity, e.Collection, e.Index, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// SinkError reports a failed delete or insert against the signal store.
// The whole replace for the pair has been rolled back when this is returned.
type SinkError struct {
	Op   string // delete, insert, lock or commit
	Code string // SQLSTATE when the driver reported one
	Err  error
}

func (e *SinkError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (sqlstate %s): %v", ErrSink, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSink, e.Op, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSink) hold for every SinkError.
func (e *SinkError) Is(target error) bool { return target == ErrSink }
