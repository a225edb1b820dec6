package svc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/fachebot/topic-digest-bot/internal/config"
	"github.com/fachebot/topic-digest-bot/internal/llm"
	"github.com/fachebot/topic-digest-bot/internal/logger"
	"github.com/fachebot/topic-digest-bot/internal/notify"
	"github.com/fachebot/topic-digest-bot/internal/pipeline"
	"github.com/fachebot/topic-digest-bot/internal/source"
	"github.com/fachebot/topic-digest-bot/internal/summarizer"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	TransportProxy *http.Transport
	HTTPClient     *http.Client // 走代理（若开启）的 HTTP 客户端，供 LLM 和投递目标使用
	Backend        summarizer.Backend
}

func NewServiceContext(c *config.Config) *ServiceContext {
	// 创建SOCKS5代理
	transportProxy, err := newTransportProxy(&c.Sock5Proxy)
	if err != nil {
		logger.Fatalf("创建SOCKS5代理失败, %v", err)
	}

	var httpClient *http.Client
	if transportProxy != nil {
		httpClient = &http.Client{Transport: transportProxy}
	}

	backend, err := llm.NewBackend(context.Background(), &c.LLM, httpClient)
	if err != nil {
		logger.Fatalf("创建 LLM 客户端失败, %v", err)
	}

	return &ServiceContext{
		Config:         c,
		TransportProxy: transportProxy,
		HTTPClient:     httpClient,
		Backend:        backend,
	}
}

func newTransportProxy(c *config.Sock5Proxy) (*http.Transport, error) {
	if !c.Enable {
		return nil, nil
	}

	socks5Proxy := fmt.Sprintf("%s:%d", c.Host, c.Port)
	dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	return &http.Transport{
		Dial:            dialer.Dial,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}, nil
}

// NewSink 按配置创建投递目标；telegram 模式使用调用方传入的 Telegram 投递实现
func (svcCtx *ServiceContext) NewSink(telegram notify.Sink) (notify.Sink, error) {
	dest := svcCtx.Config.Destination
	switch dest.Kind {
	case "discord":
		return notify.NewDiscordSink(dest.Token, svcCtx.HTTPClient)
	case "slack":
		return notify.NewSlackSink(dest.Token, svcCtx.HTTPClient), nil
	case "telegram":
		if telegram == nil {
			return nil, fmt.Errorf("telegram 投递需要已登录的 Telegram 客户端")
		}
		return telegram, nil
	default:
		return nil, fmt.Errorf("不支持的投递目标: %s", dest.Kind)
	}
}

// NewOrchestrator 按配置组装总结流程
func (svcCtx *ServiceContext) NewOrchestrator(transport source.Transport, sink notify.Sink) *pipeline.Orchestrator {
	c := svcCtx.Config
	return pipeline.NewOrchestrator(
		pipeline.Options{
			Channel:            c.Source.Channel,
			TopicIDs:           c.Source.TopicIds,
			IncludeMainChannel: c.Source.MainChannelEnabled(),
			Lookback:           c.Source.Lookback(),
			SummaryTimeout:     time.Duration(c.Summary.SummaryTimeout) * time.Second,
			PhaseBudget:        time.Duration(c.Summary.PhaseBudget) * time.Second,
			Workers:            c.Summary.Workers,
			DestinationID:      c.Destination.ChannelId,
		},
		source.NewResolver(transport),
		source.NewCatalog(transport),
		source.NewCollector(transport, c.Source.MaxMessages),
		svcCtx.Backend,
		sink,
	)
}
