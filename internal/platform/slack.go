package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackDebounceDelay is SL's default per-binding coalescing delay
// (spec.md §4.5).
const SlackDebounceDelay = 2000 * time.Millisecond

const slackRetryBackoff = time.Second

// Slack is the SL PlatformClient, grounded directly on
// codeready-toolchain-tarsy/pkg/slack/client.go's PostMessageContext /
// MsgOptionBlocks / MsgOptionTS usage, extended with chat.update for the
// binding-edit contract spec.md §4.7 requires.
type Slack struct {
	api *goslack.Client

	mu        sync.Mutex
	validated bool
}

// NewSlack constructs a Slack client for the given bot token.
func NewSlack(token string) *Slack {
	return &Slack{api: goslack.New(token)}
}

// Validate calls auth.test and caches success.
func (s *Slack) Validate(ctx context.Context) error {
	s.mu.Lock()
	if s.validated {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if _, err := s.api.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialsInvalid, err)
	}
	s.mu.Lock()
	s.validated = true
	s.mu.Unlock()
	return nil
}

// Send posts content as a new message to the channel and returns the
// message timestamp, Slack's message handle.
func (s *Slack) Send(ctx context.Context, identifier string, content RenderedContent) (string, error) {
	sl, ok := content.(SLContent)
	if !ok {
		return "", fmt.Errorf("platform: slack send: unexpected content type %T", content)
	}
	_, ts, err := s.postWithRetry(ctx, identifier, sl.Blocks)
	if err != nil {
		return "", &Error{Platform: "slack", Op: "send", Err: err}
	}
	return ts, nil
}

// Update edits an existing message's blocks in place. It returns
// (false, nil) when Slack reports the message no longer exists.
func (s *Slack) Update(ctx context.Context, identifier, messageID string, content RenderedContent) (bool, error) {
	sl, ok := content.(SLContent)
	if !ok {
		return false, fmt.Errorf("platform: slack update: unexpected content type %T", content)
	}
	err := s.updateWithRetry(ctx, identifier, messageID, sl.Blocks)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "message_not_found") {
		return false, nil
	}
	return false, &Error{Platform: "slack", Op: "update", Err: err}
}

func (s *Slack) postWithRetry(ctx context.Context, channel string, blocks []goslack.Block) (string, string, error) {
	channelID, ts, err := s.api.PostMessageContext(ctx, channel, goslack.MsgOptionBlocks(blocks...))
	if err == nil {
		return channelID, ts, nil
	}
	time.Sleep(slackRetryBackoff)
	return s.api.PostMessageContext(ctx, channel, goslack.MsgOptionBlocks(blocks...))
}

func (s *Slack) updateWithRetry(ctx context.Context, channel, ts string, blocks []goslack.Block) error {
	_, _, _, err := s.api.UpdateMessageContext(ctx, channel, ts, goslack.MsgOptionBlocks(blocks...))
	if err == nil {
		return nil
	}
	time.Sleep(slackRetryBackoff)
	_, _, _, err = s.api.UpdateMessageContext(ctx, channel, ts, goslack.MsgOptionBlocks(blocks...))
	return err
}
