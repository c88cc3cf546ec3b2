package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/pkg/logging"
)

const defaultThreadsAPIURL = "https://graph.threads.net/v1.0"

// ErrNotConfigured signals missing Threads credentials, detected before any
// network call.
var ErrNotConfigured = errors.New("publishing is not configured: Threads credentials missing")

// PublishError wraps a failed publish attempt.
type PublishError struct {
	PostID string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish post %s: %v", e.PostID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// RateLimit is the account's publishing quota as reported by the API.
type RateLimit struct {
	Usage    int `json:"usage"`
	Quota    int `json:"quota"`
	Duration int `json:"durationSeconds"`
}

// Publisher pushes a post to the outside world and reports quota.
type Publisher interface {
	// Publish returns the external post id on success.
	Publish(ctx context.Context, post posts.Post) (string, error)
	CheckRateLimit(ctx context.Context) (RateLimit, error)
}

// ThreadsPublisher speaks the Threads Graph API: create a media container,
// then publish it. Thread segments are published as replies to the previous
// segment.
type ThreadsPublisher struct {
	client      *http.Client
	accessToken string
	userID      string
	apiURL      string
	logger      logging.Logger
}

type ThreadsConfig struct {
	AccessToken string
	UserID      string
	APIURL      string
	Logger      logging.Logger
}

func NewThreadsPublisher(cfg ThreadsConfig) *ThreadsPublisher {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultThreadsAPIURL
	}
	return &ThreadsPublisher{
		client:      &http.Client{Timeout: 30 * time.Second},
		accessToken: cfg.AccessToken,
		userID:      cfg.UserID,
		apiURL:      apiURL,
		logger:      cfg.Logger,
	}
}

func (p *ThreadsPublisher) configured() bool {
	return p.accessToken != "" && p.userID != ""
}

func (p *ThreadsPublisher) Publish(ctx context.Context, post posts.Post) (string, error) {
	if !p.configured() {
		return "", ErrNotConfigured
	}

	rootID, err := p.publishText(ctx, post.Content, "")
	if err != nil {
		return "", &PublishError{PostID: post.ID, Err: err}
	}

	replyTo := rootID
	for i, segment := range post.Thread {
		segmentID, segErr := p.publishText(ctx, segment, replyTo)
		if segErr != nil {
			// The root went out; surface the partial failure but keep its id.
			return rootID, &PublishError{
				PostID: post.ID,
				Err:    fmt.Errorf("thread segment %d: %w", i+1, segErr),
			}
		}
		replyTo = segmentID
	}

	p.logger.WithFields(logging.Fields{
		"post_id":     post.ID,
		"external_id": rootID,
		"segments":    len(post.Thread),
	}).Info("Post published to Threads")
	return rootID, nil
}

// publishText runs the two-step container/publish flow for one piece of text.
func (p *ThreadsPublisher) publishText(ctx context.Context, text, replyTo string) (string, error) {
	form := url.Values{
		"media_type":   {"TEXT"},
		"text":         {text},
		"access_token": {p.accessToken},
	}
	if replyTo != "" {
		form.Set("reply_to_id", replyTo)
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := p.postForm(ctx, fmt.Sprintf("%s/%s/threads", p.apiURL, p.userID), form, &container); err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if container.ID == "" {
		return "", errors.New("create container: empty container id")
	}

	publishForm := url.Values{
		"creation_id":  {container.ID},
		"access_token": {p.accessToken},
	}
	var published struct {
		ID string `json:"id"`
	}
	if err := p.postForm(ctx, fmt.Sprintf("%s/%s/threads_publish", p.apiURL, p.userID), publishForm, &published); err != nil {
		return "", fmt.Errorf("publish container: %w", err)
	}
	if published.ID == "" {
		return "", errors.New("publish container: empty post id")
	}
	return published.ID, nil
}

func (p *ThreadsPublisher) CheckRateLimit(ctx context.Context) (RateLimit, error) {
	if !p.configured() {
		return RateLimit{}, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/%s/threads_publishing_limit?fields=quota_usage,config&access_token=%s",
		p.apiURL, p.userID, url.QueryEscape(p.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RateLimit{}, fmt.Errorf("create rate limit request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return RateLimit{}, fmt.Errorf("rate limit request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return RateLimit{}, fmt.Errorf("rate limit request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Data []struct {
			QuotaUsage int `json:"quota_usage"`
			Config     struct {
				QuotaTotal    int `json:"quota_total"`
				QuotaDuration int `json:"quota_duration"`
			} `json:"config"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return RateLimit{}, fmt.Errorf("decode rate limit response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return RateLimit{}, errors.New("rate limit response has no data")
	}
	return RateLimit{
		Usage:    decoded.Data[0].QuotaUsage,
		Quota:    decoded.Data[0].Config.QuotaTotal,
		Duration: decoded.Data[0].Config.QuotaDuration,
	}, nil
}

func (p *ThreadsPublisher) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
