package meeting

import (
	"errors"
	"fmt"
)

var (
	ErrSequenceGap       = errors.New("meeting: sequence gap")
	ErrMeetingCompleted  = errors.New("meeting: completed")
	ErrCooldownActive    = errors.New("meeting: intervention kind is cooling down")
	ErrStaleIntervention = errors.New("meeting: intervention older than the last one emitted")
	ErrStoreClosed       = errors.New("meeting: store closed")
)

type SequenceGapError struct {
	Last int64
	Got  int64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("meeting: sequence gap: got %d, expected %d", e.Got, e.Last+1)
}

func (e *SequenceGapError) Is(target error) bool { return target == ErrSequenceGap }
