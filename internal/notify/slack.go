package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/slack-go/slack"
)

// MaxSlackText Slack 单条消息建议的最大长度
const MaxSlackText = 4000

// SlackSink 投递总结到 Slack 频道
type SlackSink struct {
	client *slack.Client
	now    func() time.Time
}

func NewSlackSink(token string, httpClient *http.Client, options ...slack.Option) *SlackSink {
	if httpClient != nil {
		options = append(options, slack.OptionHTTPClient(httpClient))
	}
	return &SlackSink{client: slack.New(token, options...), now: time.Now}
}

func (s *SlackSink) Post(ctx context.Context, destinationID, title, body, attribution string) (bool, error) {
	parts := SplitMessage(body, MaxSlackText)
	for i, part := range parts {
		text := part
		if i == 0 {
			text = "*" + DatedTitle(title, s.now()) + "*\n" + text
		}
		if i == len(parts)-1 {
			text += "\n_" + Footer(attribution) + "_"
		}

		_, _, err := s.client.PostMessageContext(
			ctx,
			destinationID,
			slack.MsgOptionText(text, false),
			slack.MsgOptionPostMessageParameters(slack.PostMessageParameters{
				UnfurlLinks: false,
				UnfurlMedia: false,
			}),
		)
		if err != nil {
			var slackErr slack.SlackErrorResponse
			if errors.As(err, &slackErr) {
				logger.Errorf("[Slack] 频道 %s 拒绝了消息: %s", destinationID, slackErr.Err)
				return false, nil
			}
			return false, fmt.Errorf("发送消息到 Slack 频道 %s 失败: %w", destinationID, err)
		}
	}

	logger.Infof("[Slack] 已发送 '%s' 的总结到频道 %s", title, destinationID)
	return true, nil
}
