package teleapp

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/source"

	"github.com/zelenin/go-tdlib/client"
)

const (
	historyPageSize = 100
	maxHistoryPages = 100 // 单个分组最多翻页次数
	messageIdShift  = 20  // TDLib 消息ID = 服务端消息ID << 20
)

var _ source.Transport = (*TeleApp)(nil)

// ResolveChannel 按给定的单一格式查找频道：整数按 chat id 查询，否则按公开用户名搜索
func (app *TeleApp) ResolveChannel(ctx context.Context, ref string) (*source.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		chat *client.Chat
		err  error
	)
	if id, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil {
		chat, err = app.getChat(id)
		if err != nil {
			// 聊天可能尚未同步到本地，重新加载聊天列表后再试一次
			app.loadChatList()
			chat, err = app.getChat(id)
		}
	} else {
		chat, err = app.tdClient.SearchPublicChat(&client.SearchPublicChatRequest{
			Username: strings.TrimPrefix(ref, "@"),
		})
		if err == nil {
			app.cacheChat(chat)
		}
	}
	if err != nil {
		return nil, err
	}

	ch := &source.Channel{ID: chat.Id, Title: chat.Title}
	if sg, ok := chat.Type.(*client.ChatTypeSupergroup); ok {
		supergroup, err := app.tdClient.GetSupergroup(&client.GetSupergroupRequest{SupergroupId: sg.SupergroupId})
		if err != nil {
			logger.Warnf("[TeleApp] 获取超级群组信息失败, id: %d, %v", sg.SupergroupId, err)
		} else {
			ch.Forum = supergroup.IsForum
		}
	}
	return ch, nil
}

// ForumTopics 返回论坛话题，话题ID为服务端消息ID
func (app *TeleApp) ForumTopics(ctx context.Context, ch *source.Channel, limit int) ([]source.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	topics, err := app.tdClient.GetForumTopics(&client.GetForumTopicsRequest{
		ChatId: ch.ID,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("获取 %s 的话题列表失败: %w", ch.Title, err)
	}

	groups := make([]source.Group, 0, len(topics.Topics))
	for _, topic := range topics.Topics {
		if topic.Info == nil {
			continue
		}
		groups = append(groups, source.Group{
			ID:    topic.Info.MessageThreadId >> messageIdShift,
			Title: topic.Info.Name,
		})
	}
	return groups, nil
}

// History 从最新消息向前翻页，直到早于 since
func (app *TeleApp) History(ctx context.Context, ch *source.Channel, groupID int64, since time.Time) ([]source.RawMessage, error) {
	var (
		raws   []source.RawMessage
		fromID int64
	)

	for page := 0; page < maxHistoryPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		messages, err := app.historyPage(ch.ID, groupID, fromID)
		if err != nil {
			return nil, err
		}
		if len(messages.Messages) == 0 {
			break
		}

		reachedSince := false
		for _, message := range messages.Messages {
			fromID = message.Id
			date := time.Unix(int64(message.Date), 0)
			if date.Before(since) {
				reachedSince = true
				break
			}
			raws = append(raws, source.RawMessage{
				ID:     message.Id,
				Date:   date,
				Text:   messageText(message),
				Sender: app.sender(message.SenderId),
			})
		}
		if reachedSince {
			break
		}
		if page == maxHistoryPages-1 {
			logger.Warnf("[TeleApp] %s 消息过多，已达到翻页上限", ch.Title)
		}
	}

	// TDLib 返回从新到旧，调整为时间升序
	slices.Reverse(raws)
	return raws, nil
}

func (app *TeleApp) historyPage(chatID, groupID, fromID int64) (*client.Messages, error) {
	if groupID == 0 {
		return app.tdClient.GetChatHistory(&client.GetChatHistoryRequest{
			ChatId:        chatID,
			FromMessageId: fromID,
			Offset:        0,
			Limit:         historyPageSize,
			OnlyLocal:     false,
		})
	}
	return app.tdClient.GetMessageThreadHistory(&client.GetMessageThreadHistoryRequest{
		ChatId:        chatID,
		MessageId:     groupID << messageIdShift,
		FromMessageId: fromID,
		Offset:        0,
		Limit:         historyPageSize,
	})
}

// messageText 提取文本消息内容或媒体消息的说明文字
func messageText(message *client.Message) string {
	var text *client.FormattedText
	switch content := message.Content.(type) {
	case *client.MessageText:
		text = content.Text
	case *client.MessagePhoto:
		text = content.Caption
	case *client.MessageVideo:
		text = content.Caption
	case *client.MessageDocument:
		text = content.Caption
	case *client.MessageAudio:
		text = content.Caption
	}
	if text == nil {
		return ""
	}
	return text.Text
}

// sender 获取发送者信息，用户信息获取失败时只保留ID
func (app *TeleApp) sender(senderID client.MessageSender) *source.Sender {
	switch s := senderID.(type) {
	case *client.MessageSenderUser:
		user, err := app.getUser(s.UserId)
		if err != nil {
			logger.Warnf("[TeleApp] 获取用户信息失败, id: %d, %v", s.UserId, err)
			return &source.Sender{ID: s.UserId}
		}
		sender := &source.Sender{
			ID:        user.Id,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		}
		if user.Usernames != nil && len(user.Usernames.ActiveUsernames) > 0 {
			sender.Username = user.Usernames.ActiveUsernames[0]
		}
		return sender
	case *client.MessageSenderChat:
		// 以频道身份发言，使用频道名称
		chat, err := app.getChat(s.ChatId)
		if err != nil {
			return &source.Sender{ID: s.ChatId}
		}
		return &source.Sender{ID: chat.Id, FirstName: chat.Title}
	default:
		return nil
	}
}
