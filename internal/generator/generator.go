package generator

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heishia/thread-auto/internal/events"
	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/internal/settings"
	"github.com/heishia/thread-auto/internal/styleref"
	"github.com/heishia/thread-auto/pkg/llm"
	"github.com/heishia/thread-auto/pkg/logging"
	"github.com/heishia/thread-auto/pkg/research"
)

const (
	styleRefCount   = 3
	bulkConcurrency = 3
)

// StyleSearcher retrieves writing samples similar to a query text.
type StyleSearcher interface {
	Search(ctx context.Context, query string, k int) ([]styleref.Match, error)
}

type Config struct {
	LLM        llm.Provider
	Researcher research.Researcher
	Styles     StyleSearcher
	Posts      posts.Store
	Settings   settings.Store
	Bus        *events.Bus
	Logger     logging.Logger
	// StyleRefs caps the style samples pulled into each prompt.
	// Zero means the default.
	StyleRefs int
}

// Generator runs the research-then-compose pipeline and saves draft posts.
type Generator struct {
	llm        llm.Provider
	researcher research.Researcher
	styles     StyleSearcher
	posts      posts.Store
	settings   settings.Store
	bus        *events.Bus
	logger     logging.Logger
	styleRefs  int
}

func New(cfg Config) *Generator {
	styleRefs := cfg.StyleRefs
	if styleRefs <= 0 {
		styleRefs = styleRefCount
	}
	return &Generator{
		llm:        cfg.LLM,
		researcher: cfg.Researcher,
		styles:     cfg.Styles,
		posts:      cfg.Posts,
		settings:   cfg.Settings,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		styleRefs:  styleRefs,
	}
}

// Generate produces and saves one draft post. An empty topic triggers broad
// trend research and lets the model pick the angle.
func (g *Generator) Generate(ctx context.Context, postType posts.PostType, topic string) (posts.Post, error) {
	start := time.Now()
	post, err := g.generate(ctx, postType, topic)
	if err != nil {
		generateTotal.WithLabelValues("error").Inc()
		return posts.Post{}, err
	}
	generateTotal.WithLabelValues("ok").Inc()
	generateDuration.Observe(time.Since(start).Seconds())
	return post, nil
}

func (g *Generator) generate(ctx context.Context, postType posts.PostType, topic string) (posts.Post, error) {
	if !posts.ValidType(postType) {
		return posts.Post{}, &GenerationError{Type: postType, Topic: topic, Err: fmt.Errorf("unknown post type %q", postType)}
	}
	if g.llm == nil {
		return posts.Post{}, ErrNotConfigured
	}

	cfg, err := g.settings.Get(ctx)
	if err != nil {
		return posts.Post{}, &GenerationError{Type: postType, Topic: topic, Err: fmt.Errorf("load settings: %w", err)}
	}

	researchSummary := g.runResearch(ctx, topic)
	refs := g.findStyleRefs(ctx, topic)

	raw, err := g.compose(ctx, cfg, postType, topic, researchSummary, refs)
	if err != nil {
		return posts.Post{}, &GenerationError{Type: postType, Topic: topic, Err: err}
	}

	content, thread := parseThread(raw)
	post, err := g.posts.Save(ctx, posts.Post{
		Type:    postType,
		Content: content,
		Topic:   topic,
		Thread:  thread,
		Status:  posts.StatusDraft,
	})
	if err != nil {
		return posts.Post{}, &GenerationError{Type: postType, Topic: topic, Err: fmt.Errorf("save draft: %w", err)}
	}

	g.logger.WithFields(logging.Fields{
		"post_id":   post.ID,
		"post_type": postType,
		"topic":     topic,
	}).Info("Draft post generated")
	if g.bus != nil {
		g.bus.Publish(events.PostGenerated, map[string]any{
			"postId": post.ID,
			"type":   string(postType),
		})
	}
	return post, nil
}

// BulkResult reports a GenerateBulk run: the drafts that succeeded and how
// many topics failed.
type BulkResult struct {
	Posts  []posts.Post
	Failed int
}

// GenerateBulk fans out over topics with capped concurrency. A failing topic
// is logged and counted; it never aborts the others.
func (g *Generator) GenerateBulk(ctx context.Context, postType posts.PostType, topics []string) (BulkResult, error) {
	if g.llm == nil {
		return BulkResult{}, ErrNotConfigured
	}
	if len(topics) == 0 {
		return BulkResult{}, nil
	}

	results := make([]*posts.Post, len(topics))
	var failed int32

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(bulkConcurrency)
	for i, topic := range topics {
		group.Go(func() error {
			post, err := g.Generate(groupCtx, postType, topic)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				g.logger.WithError(err).WithFields(logging.Fields{
					"post_type": postType,
					"topic":     topic,
				}).Warn("Bulk generation topic failed")
				return nil
			}
			results[i] = &post
			return nil
		})
	}
	// Workers swallow their errors, so Wait only reflects context cancellation.
	if err := group.Wait(); err != nil {
		return BulkResult{}, err
	}

	out := BulkResult{Failed: int(failed)}
	for _, post := range results {
		if post != nil {
			out.Posts = append(out.Posts, *post)
		}
	}
	return out, nil
}

// autoTypes is the category pool unattended batches rotate through.
var autoTypes = []posts.PostType{posts.TypeAggro, posts.TypeProof, posts.TypeBrand, posts.TypeInsight}

// GenerateAuto drafts n posts for an unattended run, mixing categories the
// way a manual batch would: the four types are shuffled once and assigned
// round-robin, and every slot runs broad trend research.
func (g *Generator) GenerateAuto(ctx context.Context, n int) (BulkResult, error) {
	if g.llm == nil {
		return BulkResult{}, ErrNotConfigured
	}
	if n <= 0 {
		return BulkResult{}, nil
	}

	order := append([]posts.PostType(nil), autoTypes...)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	results := make([]*posts.Post, n)
	var failed int32

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(bulkConcurrency)
	for i := 0; i < n; i++ {
		postType := order[i%len(order)]
		group.Go(func() error {
			post, err := g.Generate(groupCtx, postType, "")
			if err != nil {
				atomic.AddInt32(&failed, 1)
				g.logger.WithError(err).WithFields(logging.Fields{
					"post_type": postType,
				}).Warn("Auto-generation slot failed")
				return nil
			}
			results[i] = &post
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return BulkResult{}, err
	}

	out := BulkResult{Failed: int(failed)}
	for _, post := range results {
		if post != nil {
			out.Posts = append(out.Posts, *post)
		}
	}
	return out, nil
}

func (g *Generator) runResearch(ctx context.Context, topic string) string {
	if g.researcher == nil {
		return ""
	}
	summary, err := g.researcher.Research(ctx, topic)
	if err != nil {
		// Research is best-effort; compose continues without it.
		g.logger.WithError(err).WithFields(logging.Fields{"topic": topic}).Warn("Research step failed")
		return ""
	}
	return summary
}

func (g *Generator) findStyleRefs(ctx context.Context, topic string) []styleref.Match {
	if g.styles == nil {
		return nil
	}
	query := topic
	if query == "" {
		query = "recent posts"
	}
	refs, err := g.styles.Search(ctx, query, g.styleRefs)
	if err != nil {
		g.logger.WithError(err).Warn("Style reference lookup failed")
		return nil
	}
	return refs
}

func (g *Generator) compose(ctx context.Context, cfg settings.Settings, postType posts.PostType, topic, researchSummary string, refs []styleref.Match) (string, error) {
	stream, err := g.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(cfg, postType, topic, researchSummary, refs)},
	})
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}
	content, err := llm.CollectStream(stream)
	if err != nil {
		return "", fmt.Errorf("compose stream: %w", err)
	}
	if content == "" {
		return "", fmt.Errorf("compose: model returned empty response")
	}
	return content, nil
}
