package cli

import (
	"fmt"
	"os"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/teleapp"

	"github.com/zelenin/go-tdlib/client"
)

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, error) {
	c, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := logger.Setup(c.Log.Level, c.Log.Dir); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return c, nil
}

// login 创建数据目录并登录 Telegram
func login(c *config.Config) (*teleapp.TeleApp, error) {
	if err := os.MkdirAll(c.TelegramApp.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	options := make([]client.Option, 0)
	if c.Sock5Proxy.Enable {
		options = append(options, client.WithProxy(&client.AddProxyRequest{
			Server: c.Sock5Proxy.Host,
			Port:   c.Sock5Proxy.Port,
			Enable: c.Sock5Proxy.Enable,
			Type:   &client.ProxyTypeSocks5{},
		}))
	}

	app := teleapp.NewApp(&c.TelegramApp)
	user, err := app.Login(options...)
	if err != nil {
		return nil, fmt.Errorf("用户登录失败: %w", err)
	}
	logger.Infof("[TeleApp] 用户 <%s %s>(%d) 登录成功", user.FirstName, user.LastName, user.Id)
	return app, nil
}

func closeApp(app *teleapp.TeleApp) {
	if err := app.Close(); err != nil {
		logger.Warnf("[TeleApp] 关闭失败, %v", err)
	}
}
