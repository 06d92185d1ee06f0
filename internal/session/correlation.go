package session

import (
	"strconv"
	"sync/atomic"
)

// CorrelationID ties a request, service open or subscription to the
// messages that answer it. Zero means "unset".
type CorrelationID int64

var lastCorrelationID atomic.Int64

// NewCorrelationID returns a process-unique, non-zero id.
func NewCorrelationID() CorrelationID {
	return CorrelationID(lastCorrelationID.Add(1))
}

func (c CorrelationID) String() string {
	return strconv.FormatInt(int64(c), 10)
}
