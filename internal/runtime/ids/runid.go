package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a time-sortable ULID identifying one instrumented run.
// IDs created by the same process are strictly increasing.
func NewRunID() string {
	return newRunID(time.Now())
}

// NewMessageID returns a ULID for messages created by the bridge stages.
func NewMessageID() string {
	return newRunID(time.Now())
}

func newRunID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// RunStartedAt extracts the creation time encoded in a run ID.
func RunStartedAt(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
