package teleapp

import (
	"path/filepath"
	"sync"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/logger"

	"github.com/zelenin/go-tdlib/client"
)

// TeleApp 基于 TDLib 的 Telegram 用户客户端，实现 source.Transport
type TeleApp struct {
	user       *client.User
	tdClient   *client.Client
	parameters *client.SetTdlibParametersRequest
	usersMu    sync.RWMutex
	usersCache map[int64]*client.User
	chatsMu    sync.RWMutex
	chatsCache map[int64]*client.Chat
}

func NewApp(c *config.TelegramApp) *TeleApp {
	_, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	})
	if err != nil {
		logger.Fatalf("[TeleApp] 设置日志级别错误, %s", err)
	}

	parameters := &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   filepath.Join(c.DataDir, ".tdlib", "database"),
		FilesDirectory:      filepath.Join(c.DataDir, ".tdlib", "files"),
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               c.ApiId,
		ApiHash:             c.ApiHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Server",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}

	return &TeleApp{
		parameters: parameters,
		chatsCache: make(map[int64]*client.Chat),
		usersCache: make(map[int64]*client.User),
	}
}

// Login 登录 Telegram 账号，首次登录时在终端交互输入手机号和验证码
func (app *TeleApp) Login(options ...client.Option) (*client.User, error) {
	if app.user != nil {
		return app.user, nil
	}

	authorizer := client.ClientAuthorizer(app.parameters)
	go client.CliInteractor(authorizer)

	tdlibClient, err := client.NewClient(authorizer, options...)
	if err != nil {
		return nil, err
	}

	me, err := tdlibClient.GetMe()
	if err != nil {
		return nil, err
	}

	app.user = me
	app.tdClient = tdlibClient

	// getChat 只能查询本地已知的聊天，新数据目录需要先加载聊天列表
	app.loadChatList()
	return me, nil
}

const chatListLimit = 100

func (app *TeleApp) loadChatList() {
	chats, err := app.tdClient.GetChats(&client.GetChatsRequest{Limit: chatListLimit})
	if err != nil {
		logger.Warnf("[TeleApp] 获取聊天列表失败: %v", err)
		return
	}
	for _, chatId := range chats.ChatIds {
		chat, err := app.getChat(chatId)
		if err != nil {
			logger.Warnf("[TeleApp] 获取聊天信息失败, id: %d, %v", chatId, err)
			continue
		}
		logger.Debugf("[TeleApp] 聊天列表: %s[%d]", chat.Title, chat.Id)
	}
}

func (app *TeleApp) Client() *client.Client {
	return app.tdClient
}

func (app *TeleApp) Close() error {
	if app.tdClient == nil {
		return nil
	}

	_, err := app.tdClient.Close()
	return err
}

func (app *TeleApp) getChat(chatId int64) (*client.Chat, error) {
	// 先尝试读锁读取缓存
	app.chatsMu.RLock()
	chat, ok := app.chatsCache[chatId]
	app.chatsMu.RUnlock()
	if ok {
		return chat, nil
	}

	// 缓存未命中，获取数据
	chat, err := app.tdClient.GetChat(&client.GetChatRequest{ChatId: chatId})
	if err != nil {
		return nil, err
	}

	app.cacheChat(chat)
	return chat, nil
}

func (app *TeleApp) cacheChat(chat *client.Chat) {
	app.chatsMu.Lock()
	app.chatsCache[chat.Id] = chat
	app.chatsMu.Unlock()
}

func (app *TeleApp) getUser(userId int64) (*client.User, error) {
	// 先尝试读锁读取缓存
	app.usersMu.RLock()
	user, ok := app.usersCache[userId]
	app.usersMu.RUnlock()
	if ok {
		return user, nil
	}

	// 缓存未命中，获取数据
	user, err := app.tdClient.GetUser(&client.GetUserRequest{UserId: userId})
	if err != nil {
		return nil, err
	}

	// 写锁更新缓存
	app.usersMu.Lock()
	app.usersCache[userId] = user
	app.usersMu.Unlock()
	return user, nil
}
