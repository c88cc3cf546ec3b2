package styleref

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a reference id has no matching row.
var ErrNotFound = errors.New("style reference not found")

type Source string

const (
	SourceManual    Source = "manual"
	SourcePublished Source = "published"
)

// Reference is a saved writing sample with its embedding. Immutable after
// creation; edits are delete-and-recreate.
type Reference struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Topic     string    `json:"topic"`
	Embedding []float32 `json:"-"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// Match is a reference paired with its similarity to a query.
type Match struct {
	Reference  Reference `json:"reference"`
	Similarity float64   `json:"similarity"`
}
