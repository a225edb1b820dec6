package teleapp

import (
	"github.com/fachebot/topic-digest-bot/internal/logger"

	"github.com/zelenin/go-tdlib/client"
)

// ChatInfo 聊天列表中的群组或频道
type ChatInfo struct {
	ID       int64
	Title    string
	Kind     string // group / supergroup / channel
	Username string
}

// ListChats 列出账号加入的群组和频道，用于查找配置所需的ID
func (app *TeleApp) ListChats(limit int32) ([]ChatInfo, error) {
	chats, err := app.tdClient.GetChats(&client.GetChatsRequest{Limit: limit})
	if err != nil {
		return nil, err
	}

	infos := make([]ChatInfo, 0, len(chats.ChatIds))
	for _, chatId := range chats.ChatIds {
		chat, err := app.getChat(chatId)
		if err != nil {
			logger.Warnf("[TeleApp] 获取聊天信息失败, id: %d, %v", chatId, err)
			continue
		}

		info := ChatInfo{ID: chat.Id, Title: chat.Title}
		switch t := chat.Type.(type) {
		case *client.ChatTypeBasicGroup:
			info.Kind = "group"
		case *client.ChatTypeSupergroup:
			info.Kind = "supergroup"
			if t.IsChannel {
				info.Kind = "channel"
			}
			if sg, err := app.tdClient.GetSupergroup(&client.GetSupergroupRequest{SupergroupId: t.SupergroupId}); err == nil &&
				sg.Usernames != nil && len(sg.Usernames.ActiveUsernames) > 0 {
				info.Username = sg.Usernames.ActiveUsernames[0]
			}
		default:
			// 过滤私聊和密聊
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
