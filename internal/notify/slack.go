package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Slack delivers events to one Slack channel.
type Slack struct {
	api     *slack.Client
	channel string
}

// NewSlack targets the given channel with a bot token.
func NewSlack(token, channel string) *Slack {
	return &Slack{api: slack.New(token), channel: channel}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, ev Event) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(ev.Text(), false),
	)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
