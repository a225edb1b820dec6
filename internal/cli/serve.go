package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/pipeline"
	"github.com/fachebot/topic-digest-bot/internal/scheduler"
	"github.com/fachebot/topic-digest-bot/internal/svc"
	"github.com/fachebot/topic-digest-bot/internal/teleapp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single collection and summary pass, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, orchestrator, app, err := setup()
		if err != nil {
			return err
		}
		defer closeApp(app)

		report := orchestrator.RunOnce(context.Background())
		if report.Err != nil {
			return report.Err
		}
		fmt.Println(report)
		return nil
	},
}

// setup 加载配置、登录 Telegram 并组装总结流程
func setup() (*svc.ServiceContext, *pipeline.Orchestrator, *teleapp.TeleApp, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)

	app, err := login(c)
	if err != nil {
		return nil, nil, nil, err
	}

	sink, err := svcCtx.NewSink(teleapp.NewNotifier(app))
	if err != nil {
		closeApp(app)
		return nil, nil, nil, err
	}

	logger.Infof("[Bot] 频道: %s, 话题: %v, 投递目标: %s(%s), 总结模型: %s",
		c.Source.Channel, c.Source.TopicIds, c.Destination.Kind, c.Destination.ChannelId, c.LLM.Model)
	return svcCtx, svcCtx.NewOrchestrator(app, sink), app, nil
}

func runServe() error {
	svcCtx, orchestrator, app, err := setup()
	if err != nil {
		return err
	}

	// 创建并启动调度器
	schedulerInstance := scheduler.NewScheduler(orchestrator, &svcCtx.Config.Summary)
	if err := schedulerInstance.Start(); err != nil {
		closeApp(app)
		return fmt.Errorf("启动调度器失败: %w", err)
	}

	// 等待程序退出
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	schedulerInstance.Stop()
	closeApp(app)
	logger.Infof("服务已停止")
	return nil
}
