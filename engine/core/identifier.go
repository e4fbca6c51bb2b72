package core

import "github.com/google/uuid"

// Identifier uniquely names a GPU object for its whole lifetime. It shows
// up in log lines and in deferred release bookkeeping.
type Identifier uuid.UUID

func NewIdentifier() Identifier {
	return Identifier(uuid.New())
}

func (id Identifier) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight hex digits, enough for log lines.
func (id Identifier) Short() string {
	return id.String()[:8]
}
