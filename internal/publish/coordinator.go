package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heishia/thread-auto/internal/events"
	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/internal/settings"
	"github.com/heishia/thread-auto/internal/styleref"
	"github.com/heishia/thread-auto/pkg/logging"
)

// StyleSaver ingests a published post as a style reference.
type StyleSaver interface {
	AddFromPost(ctx context.Context, post posts.Post) (styleref.Reference, error)
}

type CoordinatorConfig struct {
	Publisher Publisher
	Posts     posts.Store
	Styles    StyleSaver
	Settings  settings.Store
	Bus       *events.Bus
	Logger    logging.Logger
}

// Coordinator owns scheduled publication: one live one-shot timer per
// pending post, guarded by a single mutex so cancel, reschedule, and fire
// serialize against each other.
type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

type Coordinator struct {
	mu     sync.Mutex
	timers map[string]timerEntry
	seq    uint64

	publisher Publisher
	posts     posts.Store
	styles    StyleSaver
	settings  settings.Store
	bus       *events.Bus
	logger    logging.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		timers:    make(map[string]timerEntry),
		publisher: cfg.Publisher,
		posts:     cfg.Posts,
		styles:    cfg.Styles,
		settings:  cfg.Settings,
		bus:       cfg.Bus,
		logger:    cfg.Logger,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// PublishNow publishes a post immediately. Any pending timer for it is
// dropped first. The error is returned after the post is marked failed.
func (c *Coordinator) PublishNow(ctx context.Context, postID string) (posts.Post, error) {
	c.mu.Lock()
	c.dropTimerLocked(postID)
	c.mu.Unlock()

	return c.publish(ctx, postID)
}

// Schedule moves the post to pending and arms its one-shot timer. An
// existing timer for the post is replaced, never duplicated; calling this
// on an already-scheduled post is the reschedule path.
func (c *Coordinator) Schedule(ctx context.Context, postID string, at time.Time) error {
	if err := c.posts.Schedule(ctx, postID, at); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.armLocked(postID, at)

	c.logger.WithFields(logging.Fields{
		"post_id": postID,
		"at":      at.Format(time.RFC3339),
	}).Info("Post scheduled")
	return nil
}

// Reschedule atomically replaces the post's timer with one for the new time.
func (c *Coordinator) Reschedule(ctx context.Context, postID string, at time.Time) error {
	return c.Schedule(ctx, postID, at)
}

// Cancel returns a pending post to draft and stops its timer. If the fire
// has already claimed the timer the publish completes; last write wins.
func (c *Coordinator) Cancel(ctx context.Context, postID string) error {
	c.mu.Lock()
	c.dropTimerLocked(postID)
	c.mu.Unlock()

	if err := c.posts.ClearSchedule(ctx, postID); err != nil {
		return err
	}
	c.logger.WithFields(logging.Fields{"post_id": postID}).Info("Post schedule cancelled")
	return nil
}

// RestorePending rearms timers for posts left pending by a previous run.
// Posts whose time already passed fire immediately.
func (c *Coordinator) RestorePending(ctx context.Context) error {
	pending, err := c.posts.ListByStatus(ctx, posts.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending posts: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, post := range pending {
		if post.ScheduledAt == nil {
			c.logger.WithFields(logging.Fields{"post_id": post.ID}).Warn("Pending post without schedule time, skipping")
			continue
		}
		c.armLocked(post.ID, *post.ScheduledAt)
	}
	if len(pending) > 0 {
		c.logger.WithFields(logging.Fields{"count": len(pending)}).Info("Pending post timers restored")
	}
	return nil
}

// Shutdown stops all timers and waits for in-flight publishes.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for id, entry := range c.timers {
		entry.timer.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// armLocked replaces any existing timer for the post. Caller holds the mutex.
func (c *Coordinator) armLocked(postID string, at time.Time) {
	c.dropTimerLocked(postID)

	c.seq++
	gen := c.seq
	c.timers[postID] = timerEntry{
		timer: time.AfterFunc(time.Until(at), func() { c.fire(postID, gen) }),
		gen:   gen,
	}
}

func (c *Coordinator) dropTimerLocked(postID string) {
	if entry, ok := c.timers[postID]; ok {
		entry.timer.Stop()
		delete(c.timers, postID)
	}
}

// fire claims the post's timer entry before publishing. If the entry is
// gone or belongs to a newer timer, this fire lost a cancel or reschedule
// race and does nothing.
func (c *Coordinator) fire(postID string, gen uint64) {
	c.mu.Lock()
	entry, ok := c.timers[postID]
	if !ok || entry.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.timers, postID)
	// Add while still holding the mutex so Shutdown's Wait cannot start
	// between the claim and the Add.
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.WithFields(logging.Fields{"post_id": postID, "panic": r}).Error("Scheduled publish panicked")
			}
		}()
		if _, err := c.publish(c.baseCtx, postID); err != nil {
			c.logger.WithError(err).WithFields(logging.Fields{"post_id": postID}).Warn("Scheduled publish failed")
		}
	}()
}

func (c *Coordinator) publish(ctx context.Context, postID string) (posts.Post, error) {
	post, err := c.posts.Get(ctx, postID)
	if err != nil {
		return posts.Post{}, err
	}

	externalID, err := c.publisher.Publish(ctx, post)
	if err != nil {
		publishTotal.WithLabelValues("error").Inc()
		if markErr := c.posts.MarkFailed(ctx, postID, err.Error()); markErr != nil {
			c.logger.WithError(markErr).WithFields(logging.Fields{"post_id": postID}).Error("Failed to mark post failed")
		}
		if c.bus != nil {
			c.bus.Publish(events.PostFailed, map[string]any{
				"postId": postID,
				"error":  err.Error(),
			})
		}
		return posts.Post{}, err
	}

	publishTotal.WithLabelValues("ok").Inc()

	publishedAt := time.Now().UTC()
	if err := c.posts.MarkPublished(ctx, postID, externalID, publishedAt); err != nil {
		return posts.Post{}, fmt.Errorf("mark post published: %w", err)
	}
	post.Status = posts.StatusPublished
	post.ScheduledAt = nil
	post.PublishedAt = &publishedAt
	post.ExternalPostID = externalID

	c.autoSaveStyle(ctx, post)

	if c.bus != nil {
		c.bus.Publish(events.PostPublished, map[string]any{
			"postId":     postID,
			"externalId": externalID,
		})
	}
	return post, nil
}

func (c *Coordinator) autoSaveStyle(ctx context.Context, post posts.Post) {
	if c.styles == nil || c.settings == nil {
		return
	}
	cfg, err := c.settings.Get(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Settings unavailable, skipping style auto-save")
		return
	}
	if !cfg.AutoSaveStyleReference {
		return
	}
	if _, err := c.styles.AddFromPost(ctx, post); err != nil {
		// Auto-save is best-effort; the publish already succeeded.
		c.logger.WithError(err).WithFields(logging.Fields{"post_id": post.ID}).Warn("Style auto-save failed")
	}
}
