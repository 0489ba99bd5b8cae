package pagequeue

import (
	"fmt"
	"time"
)

type constError string

// ErrInvalidConfig may be returned from [New].
const ErrInvalidConfig = constError("invalid configuration")

func (errStr constError) Error() string { return string(errStr) }

func rotationIntervalError(min, max time.Duration) error {
	return fmt.Errorf(
		"%w: minimum rotation interval %s exceeds maximum %s",
		ErrInvalidConfig, min, max)
}
