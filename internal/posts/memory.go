package posts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps posts in process memory. Used when no DATABASE_URL is
// configured; state is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]Post
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{posts: make(map[string]Post)}
}

func (s *MemoryStore) Save(_ context.Context, post Post) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Status == "" {
		post.Status = StatusDraft
	}
	if existing, ok := s.posts[post.ID]; ok {
		post.CreatedAt = existing.CreatedAt
	} else if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	s.posts[post.ID] = clonePost(post)
	return post, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return clonePost(post), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, 0, len(s.posts))
	for _, post := range s.posts {
		out = append(out, clonePost(post))
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status PostStatus) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Post
	for _, post := range s.posts {
		if post.Status == status {
			out = append(out, clonePost(post))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *MemoryStore) Schedule(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(post *Post) {
		post.Status = StatusPending
		post.ScheduledAt = &at
		post.ErrorMessage = ""
	})
}

func (s *MemoryStore) ClearSchedule(_ context.Context, id string) error {
	return s.update(id, func(post *Post) {
		post.Status = StatusDraft
		post.ScheduledAt = nil
	})
}

func (s *MemoryStore) MarkPublished(_ context.Context, id, externalID string, at time.Time) error {
	return s.update(id, func(post *Post) {
		post.Status = StatusPublished
		post.ScheduledAt = nil
		post.PublishedAt = &at
		post.ExternalPostID = externalID
		post.ErrorMessage = ""
	})
}

func (s *MemoryStore) MarkFailed(_ context.Context, id, message string) error {
	return s.update(id, func(post *Post) {
		post.Status = StatusFailed
		post.ScheduledAt = nil
		post.ErrorMessage = message
	})
}

func (s *MemoryStore) update(id string, apply func(*Post)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	apply(&post)
	s.posts[id] = post
	return nil
}

func clonePost(post Post) Post {
	if post.Thread != nil {
		post.Thread = append([]string(nil), post.Thread...)
	}
	if post.ScheduledAt != nil {
		t := *post.ScheduledAt
		post.ScheduledAt = &t
	}
	if post.PublishedAt != nil {
		t := *post.PublishedAt
		post.PublishedAt = &t
	}
	return post
}

func sortNewestFirst(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
