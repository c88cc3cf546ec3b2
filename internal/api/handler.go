package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/heishia/thread-auto/internal/events"
	"github.com/heishia/thread-auto/internal/generator"
	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/internal/publish"
	"github.com/heishia/thread-auto/internal/scheduler"
	"github.com/heishia/thread-auto/internal/settings"
	"github.com/heishia/thread-auto/internal/styleref"
	"github.com/heishia/thread-auto/pkg/logging"
	"github.com/heishia/thread-auto/pkg/middleware"
)

// Generator is the slice of the generation pipeline the API needs.
type Generator interface {
	Generate(ctx context.Context, postType posts.PostType, topic string) (posts.Post, error)
	GenerateBulk(ctx context.Context, postType posts.PostType, topics []string) (generator.BulkResult, error)
}

// Coordinator is the slice of the publish coordinator the API needs.
type Coordinator interface {
	PublishNow(ctx context.Context, postID string) (posts.Post, error)
	Schedule(ctx context.Context, postID string, at time.Time) error
	Cancel(ctx context.Context, postID string) error
}

// StyleService is the slice of the style reference service the API needs.
type StyleService interface {
	AddReference(ctx context.Context, content, topic string, source styleref.Source) (styleref.Reference, error)
	AddFromPost(ctx context.Context, post posts.Post) (styleref.Reference, error)
	List(ctx context.Context) ([]styleref.Reference, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type Config struct {
	Settings    settings.Store
	Posts       posts.Store
	Generator   Generator
	Scheduler   *scheduler.Scheduler
	Coordinator Coordinator
	Styles      StyleService
	Publisher   publish.Publisher
	Hub         *events.Hub
	APIKey      string
	Logger      logging.Logger
}

type Handler struct {
	settings    settings.Store
	posts       posts.Store
	generator   Generator
	scheduler   *scheduler.Scheduler
	coordinator Coordinator
	styles      StyleService
	publisher   publish.Publisher
	hub         *events.Hub
	apiKey      string
	logger      logging.Logger
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		settings:    cfg.Settings,
		posts:       cfg.Posts,
		generator:   cfg.Generator,
		scheduler:   cfg.Scheduler,
		coordinator: cfg.Coordinator,
		styles:      cfg.Styles,
		publisher:   cfg.Publisher,
		hub:         cfg.Hub,
		apiKey:      cfg.APIKey,
		logger:      cfg.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	if h.hub != nil {
		router.GET("/ws", gin.WrapF(h.hub.ServeWS))
	}

	group := router.Group("/api/threadauto")
	group.Use(middleware.APIKeyMiddleware(h.apiKey))

	group.GET("/settings", h.handleGetSettings)
	group.PATCH("/settings", h.handlePatchSettings)

	group.GET("/posts", h.handleListPosts)
	group.DELETE("/posts/:id", h.handleDeletePost)
	group.POST("/posts/:id/publish", h.handlePublishNow)
	group.POST("/posts/:id/schedule", h.handleSchedulePost)
	group.DELETE("/posts/:id/schedule", h.handleCancelSchedule)
	group.POST("/posts/:id/style", h.handleAddStyleFromPost)

	group.POST("/generate", h.handleGenerate)
	group.POST("/generate/bulk", h.handleGenerateBulk)

	group.GET("/autogen", h.handleAutoGenStatus)
	group.POST("/autogen", h.handleConfigureAutoGen)
	group.GET("/reminder", h.handleReminderStatus)
	group.POST("/reminder", h.handleConfigureReminder)

	group.GET("/stylerefs", h.handleListStyleRefs)
	group.POST("/stylerefs", h.handleAddStyleRef)
	group.DELETE("/stylerefs/:id", h.handleDeleteStyleRef)
	group.DELETE("/stylerefs", h.handleClearStyleRefs)

	group.GET("/ratelimit", h.handleRateLimit)
}

func (h *Handler) handleGetSettings(c *gin.Context) {
	cfg, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) handlePatchSettings(c *gin.Context) {
	var update settings.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if update.AutoGenerateInterval != nil && *update.AutoGenerateInterval <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "autoGenerateInterval must be positive"})
		return
	}

	merged, err := h.settings.Set(c.Request.Context(), update)
	if err != nil {
		h.logger.WithError(err).Error("Failed to save settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	h.reconcileScheduler(update, merged)
	c.JSON(http.StatusOK, merged)
}

// reconcileScheduler restarts timer classes whose settings the update
// touched, so a PATCH of unrelated fields never resets a running cadence.
func (h *Handler) reconcileScheduler(update settings.Update, merged settings.Settings) {
	if h.scheduler == nil {
		return
	}
	if update.AutoGenerateEnabled != nil || update.AutoGenerateInterval != nil {
		if merged.AutoGenerateEnabled {
			interval := time.Duration(merged.AutoGenerateInterval) * time.Minute
			if err := h.scheduler.Start(scheduler.ClassAutoGen, interval); err != nil {
				h.logger.WithError(err).Warn("Failed to restart auto-generation timer")
			}
		} else {
			h.scheduler.Stop(scheduler.ClassAutoGen)
		}
	}
	if update.ReminderEnabled != nil {
		if merged.ReminderEnabled {
			if err := h.scheduler.Start(scheduler.ClassReminder, 0); err != nil {
				h.logger.WithError(err).Warn("Failed to restart reminder timer")
			}
		} else {
			h.scheduler.Stop(scheduler.ClassReminder)
		}
	}
}

func (h *Handler) handleListPosts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var (
		list []posts.Post
		err  error
	)
	if status := c.Query("status"); status != "" {
		list, err = h.posts.ListByStatus(c.Request.Context(), posts.PostStatus(status))
	} else {
		list, err = h.posts.List(c.Request.Context(), limit)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to list posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list posts"})
		return
	}
	if list == nil {
		list = []posts.Post{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": list})
}

func (h *Handler) handleDeletePost(c *gin.Context) {
	err := h.posts.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, posts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete post"})
		return
	}
	c.Status(http.StatusNoContent)
}

type generateRequest struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

func (h *Handler) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	postType := posts.PostType(req.Type)
	if !posts.ValidType(postType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown post type"})
		return
	}

	post, err := h.generator.Generate(c.Request.Context(), postType, strings.TrimSpace(req.Topic))
	if errors.Is(err, generator.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
		return
	}
	c.JSON(http.StatusCreated, post)
}

type generateBulkRequest struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
	Count  int      `json:"count"`
}

func (h *Handler) handleGenerateBulk(c *gin.Context) {
	var req generateBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	postType := posts.PostType(req.Type)
	if !posts.ValidType(postType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown post type"})
		return
	}

	topics := req.Topics
	if len(topics) == 0 {
		// Topic-less slots each trigger broad trend research.
		if req.Count <= 0 || req.Count > 20 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topics or a count between 1 and 20 is required"})
			return
		}
		topics = make([]string, req.Count)
	}

	result, err := h.generator.GenerateBulk(c.Request.Context(), postType, topics)
	if errors.Is(err, generator.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Bulk generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk generation failed"})
		return
	}
	if result.Posts == nil {
		result.Posts = []posts.Post{}
	}
	c.JSON(http.StatusCreated, gin.H{
		"posts":  result.Posts,
		"failed": result.Failed,
	})
}

func (h *Handler) handleAutoGenStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status(scheduler.ClassAutoGen))
}

type configureAutoGenRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"intervalMinutes"`
}

func (h *Handler) handleConfigureAutoGen(c *gin.Context) {
	var req configureAutoGenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Enabled && req.IntervalMinutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "intervalMinutes must be positive"})
		return
	}

	interval := time.Duration(req.IntervalMinutes) * time.Minute
	if err := h.scheduler.Configure(c.Request.Context(), scheduler.ClassAutoGen, req.Enabled, interval); err != nil {
		h.logger.WithError(err).Error("Failed to configure auto-generation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to configure auto-generation"})
		return
	}
	c.JSON(http.StatusOK, h.scheduler.Status(scheduler.ClassAutoGen))
}

func (h *Handler) handleReminderStatus(c *gin.Context) {
	status := h.scheduler.Status(scheduler.ClassReminder)
	targetURL := ""
	if cfg, err := h.settings.Get(c.Request.Context()); err == nil {
		targetURL = cfg.ReminderTargetURL
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":      status.Enabled,
		"isRunning":    status.IsRunning,
		"nextFireTime": status.NextFireTime,
		"targetUrl":    targetURL,
	})
}

type configureReminderRequest struct {
	Enabled   bool    `json:"enabled"`
	TargetURL *string `json:"targetUrl"`
}

func (h *Handler) handleConfigureReminder(c *gin.Context) {
	var req configureReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.TargetURL != nil {
		if _, err := h.settings.Set(c.Request.Context(), settings.Update{ReminderTargetURL: req.TargetURL}); err != nil {
			h.logger.WithError(err).Error("Failed to save reminder target")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save reminder target"})
			return
		}
	}
	if err := h.scheduler.Configure(c.Request.Context(), scheduler.ClassReminder, req.Enabled, 0); err != nil {
		h.logger.WithError(err).Error("Failed to configure reminder")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to configure reminder"})
		return
	}
	c.JSON(http.StatusOK, h.scheduler.Status(scheduler.ClassReminder))
}

func (h *Handler) handlePublishNow(c *gin.Context) {
	post, err := h.coordinator.PublishNow(c.Request.Context(), c.Param("id"))
	if errors.Is(err, posts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if errors.Is(err, publish.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		// The post is already marked failed; surface the upstream message.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, post)
}

type scheduleRequest struct {
	At time.Time `json:"at"`
}

func (h *Handler) handleSchedulePost(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body, expected RFC3339 time in \"at\""})
		return
	}
	if req.At.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at is required"})
		return
	}

	err := h.coordinator.Schedule(c.Request.Context(), c.Param("id"), req.At)
	if errors.Is(err, posts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to schedule post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduledAt": req.At})
}

func (h *Handler) handleCancelSchedule(c *gin.Context) {
	err := h.coordinator.Cancel(c.Request.Context(), c.Param("id"))
	if errors.Is(err, posts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to cancel schedule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel schedule"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleListStyleRefs(c *gin.Context) {
	refs, err := h.styles.List(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list style references")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list style references"})
		return
	}
	if refs == nil {
		refs = []styleref.Reference{}
	}
	c.JSON(http.StatusOK, gin.H{"styleReferences": refs})
}

type addStyleRefRequest struct {
	Content string `json:"content"`
	Topic   string `json:"topic"`
}

func (h *Handler) handleAddStyleRef(c *gin.Context) {
	var req addStyleRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	ref, err := h.styles.AddReference(c.Request.Context(), req.Content, req.Topic, styleref.SourceManual)
	if err != nil {
		h.logger.WithError(err).Error("Failed to add style reference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add style reference"})
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (h *Handler) handleAddStyleFromPost(c *gin.Context) {
	post, err := h.posts.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, posts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load post"})
		return
	}

	ref, err := h.styles.AddFromPost(c.Request.Context(), post)
	if err != nil {
		h.logger.WithError(err).Error("Failed to add style reference from post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add style reference"})
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (h *Handler) handleDeleteStyleRef(c *gin.Context) {
	err := h.styles.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, styleref.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "style reference not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete style reference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete style reference"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleClearStyleRefs(c *gin.Context) {
	if err := h.styles.Clear(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear style references")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear style references"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleRateLimit(c *gin.Context) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "publisher not configured"})
		return
	}
	limit, err := h.publisher.CheckRateLimit(c.Request.Context())
	if errors.Is(err, publish.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Rate limit check failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "rate limit check failed"})
		return
	}
	c.JSON(http.StatusOK, limit)
}
