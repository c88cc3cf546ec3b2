package styleref

import (
	"context"
	"errors"
	"testing"

	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/pkg/logging"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (e *stubEmbedder) Model() string { return "stub" }

func (e *stubEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, ok := e.vectors[input]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func TestServiceAddAndSearch(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"sharp take":  {1, 0, 0},
		"soft take":   {0, 1, 0},
		"sharp query": {1, 0.1, 0},
	}}
	svc := NewService(embedder, NewMemoryStore(), logging.NewLogger())

	if _, err := svc.AddReference(context.Background(), "sharp take", "", SourceManual); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddReference(context.Background(), "soft take", "", SourceManual); err != nil {
		t.Fatalf("add: %v", err)
	}

	matches, err := svc.Search(context.Background(), "sharp query", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Reference.Content != "sharp take" {
		t.Fatalf("unexpected search result %+v", matches)
	}
}

func TestServiceSearchEmptyIndexSkipsEmbedding(t *testing.T) {
	embedder := &stubEmbedder{fail: true}
	svc := NewService(embedder, NewMemoryStore(), logging.NewLogger())

	matches, err := svc.Search(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("empty index search must not call embedder: %v", err)
	}
	if matches != nil {
		t.Fatalf("expected nil matches, got %v", matches)
	}
}

func TestServiceAddRejectsEmptyContent(t *testing.T) {
	svc := NewService(&stubEmbedder{}, NewMemoryStore(), logging.NewLogger())
	if _, err := svc.AddReference(context.Background(), "   ", "topic", SourceManual); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestServiceDeleteKeepsIndexCoherent(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{}}
	svc := NewService(embedder, NewMemoryStore(), logging.NewLogger())

	ref, err := svc.AddReference(context.Background(), "sample", "", SourceManual)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if svc.index.Len() != 1 {
		t.Fatalf("expected indexed reference")
	}

	if err := svc.Delete(context.Background(), ref.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if svc.index.Len() != 0 {
		t.Fatalf("index not updated on delete")
	}

	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceAddFromPostMarksPublishedSource(t *testing.T) {
	svc := NewService(&stubEmbedder{}, NewMemoryStore(), logging.NewLogger())

	ref, err := svc.AddFromPost(context.Background(), posts.Post{
		Content: "published body",
		Topic:   "launch",
	})
	if err != nil {
		t.Fatalf("add from post: %v", err)
	}
	if ref.Source != SourcePublished {
		t.Fatalf("expected published source, got %s", ref.Source)
	}
}

func TestServiceLoadIndexReplacesContents(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Insert(context.Background(), Reference{Content: "a", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Insert(context.Background(), Reference{Content: "b", Embedding: []float32{0, 1}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := NewService(&stubEmbedder{}, store, logging.NewLogger())
	svc.index.Add(Reference{ID: "stale", Embedding: []float32{1, 1}})

	if err := svc.LoadIndex(context.Background()); err != nil {
		t.Fatalf("load index: %v", err)
	}
	if svc.index.Len() != 2 {
		t.Fatalf("expected 2 indexed references, got %d", svc.index.Len())
	}
}
