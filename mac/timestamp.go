package mac

import (
	"errors"
	"strconv"
	"time"
)

// Timestamp is a decimal string of an integer number of seconds since the
// epoch. It is kept as a string, matching the wire representation, with
// helpers to move to and from int64.
type Timestamp string

// GenerateTimestamp returns the current time as a Timestamp.
func GenerateTimestamp(now time.Time) Timestamp {
	return Timestamp(strconv.FormatInt(now.Unix(), 10))
}

// NewTimestamp validates that value is parseable as an integer.
func NewTimestamp(value string) (Timestamp, error) {
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return "", errors.New("mac: timestamp must be an integer number of seconds")
	}
	return Timestamp(value), nil
}

// Int64 returns the timestamp as seconds since the epoch. Callers are
// expected to have validated the value via NewTimestamp or GenerateTimestamp.
func (t Timestamp) Int64() (int64, error) {
	return strconv.ParseInt(string(t), 10, 64)
}

func (t Timestamp) String() string {
	return string(t)
}
