package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fachebot/topic-digest-bot/internal/logger"
)

const (
	MaxEmbedDescription = 4096     // Discord embed 描述最大长度
	embedColor          = 0x3498db // 总结 embed 颜色
)

// embedSender 定义 Discord 发送接口，便于测试
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink 以 embed 形式投递总结到 Discord 频道
type DiscordSink struct {
	session embedSender
	now     func() time.Time
}

func NewDiscordSink(token string, httpClient *http.Client) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("创建 Discord 会话失败: %w", err)
	}
	if httpClient != nil {
		session.Client = httpClient
	}
	return &DiscordSink{session: session, now: time.Now}, nil
}

func (d *DiscordSink) Post(ctx context.Context, destinationID, title, body, attribution string) (bool, error) {
	parts := SplitMessage(body, MaxEmbedDescription)
	for i, part := range parts {
		embed := &discordgo.MessageEmbed{
			Description: part,
			Color:       embedColor,
		}
		if i == 0 {
			embed.Title = DatedTitle(title, d.now())
		}
		if i == len(parts)-1 {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: Footer(attribution)}
		}

		_, err := d.session.ChannelMessageSendEmbed(destinationID, embed, discordgo.WithContext(ctx))
		if err != nil {
			var restErr *discordgo.RESTError
			if errors.As(err, &restErr) && restErr.Response != nil &&
				(restErr.Response.StatusCode == http.StatusNotFound || restErr.Response.StatusCode == http.StatusForbidden) {
				logger.Errorf("[Discord] 频道 %s 不可用: %v", destinationID, err)
				return false, nil
			}
			return false, fmt.Errorf("发送 embed 到 Discord 频道 %s 失败: %w", destinationID, err)
		}
	}

	logger.Infof("[Discord] 已发送 '%s' 的总结到频道 %s", title, destinationID)
	return true, nil
}
