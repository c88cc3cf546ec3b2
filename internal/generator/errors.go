package generator

import (
	"errors"
	"fmt"

	"github.com/heishia/thread-auto/internal/posts"
)

// ErrNotConfigured signals missing generation credentials, detected before
// any network call.
var ErrNotConfigured = errors.New("generation is not configured: LLM credentials missing")

// GenerationError wraps a failure in the research/compose/save pipeline.
type GenerationError struct {
	Type  posts.PostType
	Topic string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("generate %s post: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("generate %s post about %q: %v", e.Type, e.Topic, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
