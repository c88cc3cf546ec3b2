package settings

import (
	"context"

	"github.com/heishia/thread-auto/internal/posts"
)

// Settings are the user-tunable knobs persisted across restarts. Env config
// supplies deployment facts; these hold preferences the UI can change.
type Settings struct {
	AutoGenerateEnabled    bool                      `json:"autoGenerateEnabled"`
	AutoGenerateInterval   int                       `json:"autoGenerateInterval"` // minutes
	ReminderEnabled        bool                      `json:"reminderEnabled"`
	ReminderTargetURL      string                    `json:"reminderTargetUrl"`
	AutoSaveStyleReference bool                      `json:"autoSaveStyleReference"`
	Prompts                map[posts.PostType]string `json:"prompts"`
}

// Update is a partial settings change. Nil fields keep their current value.
type Update struct {
	AutoGenerateEnabled    *bool                     `json:"autoGenerateEnabled,omitempty"`
	AutoGenerateInterval   *int                      `json:"autoGenerateInterval,omitempty"`
	ReminderEnabled        *bool                     `json:"reminderEnabled,omitempty"`
	ReminderTargetURL      *string                   `json:"reminderTargetUrl,omitempty"`
	AutoSaveStyleReference *bool                     `json:"autoSaveStyleReference,omitempty"`
	Prompts                map[posts.PostType]string `json:"prompts,omitempty"`
}

type Store interface {
	Get(ctx context.Context) (Settings, error)
	Set(ctx context.Context, update Update) (Settings, error)
}

// Defaults returns the settings used before the user has changed anything.
func Defaults() Settings {
	return Settings{
		AutoGenerateEnabled:    false,
		AutoGenerateInterval:   360,
		ReminderEnabled:        true,
		ReminderTargetURL:      "https://www.threads.net",
		AutoSaveStyleReference: true,
		Prompts: map[posts.PostType]string{
			posts.TypeAggro:   "Take a strong, contrarian stance on the topic. Open with the most provocative defensible claim and back it with one concrete observation. No hedging.",
			posts.TypeProof:   "Show, don't tell. Walk through a specific result, number, or before/after from real work on the topic. Lead with the outcome.",
			posts.TypeBrand:   "Write in first person about why this topic matters to the author's mission. Personal, direct, no corporate language.",
			posts.TypeInsight: "Extract one non-obvious lesson about the topic that most practitioners miss. Explain it so a mid-level reader has an aha moment.",
		},
	}
}

func merge(current Settings, update Update) Settings {
	if update.AutoGenerateEnabled != nil {
		current.AutoGenerateEnabled = *update.AutoGenerateEnabled
	}
	if update.AutoGenerateInterval != nil {
		current.AutoGenerateInterval = *update.AutoGenerateInterval
	}
	if update.ReminderEnabled != nil {
		current.ReminderEnabled = *update.ReminderEnabled
	}
	if update.ReminderTargetURL != nil {
		current.ReminderTargetURL = *update.ReminderTargetURL
	}
	if update.AutoSaveStyleReference != nil {
		current.AutoSaveStyleReference = *update.AutoSaveStyleReference
	}
	if len(update.Prompts) > 0 {
		merged := make(map[posts.PostType]string, len(current.Prompts)+len(update.Prompts))
		for k, v := range current.Prompts {
			merged[k] = v
		}
		for k, v := range update.Prompts {
			merged[k] = v
		}
		current.Prompts = merged
	}
	return current
}

func cloneSettings(s Settings) Settings {
	if s.Prompts != nil {
		prompts := make(map[posts.PostType]string, len(s.Prompts))
		for k, v := range s.Prompts {
			prompts[k] = v
		}
		s.Prompts = prompts
	}
	return s
}
