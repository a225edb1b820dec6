package teleapp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/notify"

	"github.com/zelenin/go-tdlib/client"
)

const (
	MaxMessageLength = 4000 // Telegram 消息最大长度
)

// Notifier 通过当前登录账号把总结发送到 Telegram 聊天
type Notifier struct {
	app *TeleApp
}

var _ notify.Sink = (*Notifier)(nil)

func NewNotifier(app *TeleApp) *Notifier {
	return &Notifier{app: app}
}

func (n *Notifier) Post(ctx context.Context, destinationID, title, body, attribution string) (bool, error) {
	chatID, err := strconv.ParseInt(destinationID, 10, 64)
	if err != nil {
		logger.Errorf("[Notify] 无效的 Telegram 聊天ID: %s", destinationID)
		return false, nil
	}

	header := "<b>" + notify.EscapeHTML(notify.DatedTitle(title, time.Now())) + "</b>"
	footer := "<i>" + notify.EscapeHTML(notify.Footer(attribution)) + "</i>"
	parts := notify.SplitMessage(body, MaxMessageLength)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		text := notify.EscapeHTML(part)
		if i == 0 {
			text = header + "\n\n" + text
		}
		if i == len(parts)-1 {
			text += "\n\n" + footer
		}

		_, err := n.app.Client().SendMessage(&client.SendMessageRequest{
			ChatId: chatID,
			InputMessageContent: &client.InputMessageText{
				Text: parseHTMLText(text),
			},
		})
		if err != nil {
			return false, fmt.Errorf("发送消息到聊天 %d 失败: %w", chatID, err)
		}
	}

	logger.Infof("[Notify] 已发送 '%s' 的总结到聊天 %d", title, chatID)
	return true, nil
}

// parseHTMLText 使用 TDLib 的 HTML 解析能力，将 HTML 文本转换为带实体的 FormattedText
func parseHTMLText(text string) *client.FormattedText {
	if text == "" {
		return &client.FormattedText{Text: text}
	}

	formatted, err := client.ParseTextEntities(&client.ParseTextEntitiesRequest{
		Text:      text,
		ParseMode: &client.TextParseModeHTML{},
	})
	if err != nil {
		logger.Warnf("[Notify] 解析 HTML 文本失败，回退为纯文本发送: %v", err)
		return &client.FormattedText{Text: text}
	}
	return formatted
}
