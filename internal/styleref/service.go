package styleref

import (
	"context"
	"fmt"
	"strings"

	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/pkg/llm"
	"github.com/heishia/thread-auto/pkg/logging"
)

// Service owns the embedder, the persistent store, and the in-memory index,
// keeping the index coherent with the store on every mutation.
type Service struct {
	embedder llm.EmbeddingClient
	store    Store
	index    *Index
	logger   logging.Logger
}

func NewService(embedder llm.EmbeddingClient, store Store, logger logging.Logger) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		index:    NewIndex(logger),
		logger:   logger,
	}
}

// LoadIndex replaces the index contents with everything in the store.
// Called once at startup before the service is handed out.
func (s *Service) LoadIndex(ctx context.Context) error {
	refs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load style references: %w", err)
	}
	s.index.Clear()
	for _, ref := range refs {
		s.index.Add(ref)
	}
	s.logger.WithFields(logging.Fields{"count": len(refs)}).Info("Style reference index loaded")
	return nil
}

// AddReference embeds the content, persists the reference, then indexes it.
func (s *Service) AddReference(ctx context.Context, content, topic string, source Source) (Reference, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Reference{}, fmt.Errorf("style reference content is empty")
	}

	vectors, err := s.embedder.Embed(ctx, []string{embeddingText(content, topic)})
	if err != nil {
		return Reference{}, fmt.Errorf("embed style reference: %w", err)
	}

	ref, err := s.store.Insert(ctx, Reference{
		Content:   content,
		Topic:     topic,
		Embedding: vectors[0],
		Source:    source,
	})
	if err != nil {
		return Reference{}, err
	}
	s.index.Add(ref)
	return ref, nil
}

// AddFromPost saves a post's content as a published-source reference.
func (s *Service) AddFromPost(ctx context.Context, post posts.Post) (Reference, error) {
	return s.AddReference(ctx, post.Content, post.Topic, SourcePublished)
}

// Search embeds the query text and returns the k closest references.
func (s *Service) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if s.index.Len() == 0 {
		return nil, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.index.FindSimilar(vectors[0], k), nil
}

func (s *Service) List(ctx context.Context) ([]Reference, error) {
	return s.store.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.index.Remove(id)
	return nil
}

func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.index.Clear()
	return nil
}

func embeddingText(content, topic string) string {
	if strings.TrimSpace(topic) == "" {
		return content
	}
	return topic + "\n\n" + content
}
