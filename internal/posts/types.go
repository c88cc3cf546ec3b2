package posts

import "time"

type PostType string

const (
	TypeAggro   PostType = "aggro"
	TypeProof   PostType = "proof"
	TypeBrand   PostType = "brand"
	TypeInsight PostType = "insight"
)

// ValidType reports whether t is one of the known post types.
func ValidType(t PostType) bool {
	switch t {
	case TypeAggro, TypeProof, TypeBrand, TypeInsight:
		return true
	default:
		return false
	}
}

type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPending   PostStatus = "pending"
	StatusPublished PostStatus = "published"
	StatusFailed    PostStatus = "failed"
)

// Post is a generated Threads post draft and its publication lifecycle.
// ScheduledAt is set exactly when Status is pending.
type Post struct {
	ID             string     `json:"id"`
	Type           PostType   `json:"type"`
	Content        string     `json:"content"`
	Topic          string     `json:"topic"`
	Thread         []string   `json:"thread,omitempty"`
	Status         PostStatus `json:"status"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	ExternalPostID string     `json:"externalPostId,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
