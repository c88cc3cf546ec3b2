package research

import "context"

// Researcher gathers current context for a topic before content generation.
type Researcher interface {
	// Research returns a prose summary of recent material on the topic.
	// An empty topic asks for a broad sweep of currently trending subjects.
	Research(ctx context.Context, topic string) (string, error)
}
