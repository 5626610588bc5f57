package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gobroker/internal/services"
	"github.com/betbot/gobroker/pkg/config"
	"github.com/betbot/gobroker/pkg/logger"
	"github.com/betbot/gobroker/pkg/sdk/alpaca"
	"github.com/betbot/gobroker/pkg/sdk/httpx"
	"github.com/betbot/gobroker/pkg/sdk/stream"
	"github.com/betbot/gobroker/pkg/shutdown"
	"github.com/betbot/gobroker/pkg/syncgroup"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径（YAML）")
	envFile := flag.String("env-file", "", ".env 文件路径（可选，凭证环境变量）")
	binaryFrames := flag.Bool("binary-stream", false, "事件流使用二进制帧（msgpack 编码）")
	flag.Parse()

	// 先用默认日志启动，配置加载成功后再按配置重初始化
	if err := logger.InitDefault(); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}

	// 可选 .env（凭证通过环境变量进程注入，绝不写进配置文件）
	if strings.TrimSpace(*envFile) != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logrus.Errorf("加载 env 文件失败: %v", err)
			os.Exit(1)
		}
		logrus.Infof("已加载环境变量文件: %s", *envFile)
	}

	// 加载配置（配置错误启动期致命，绝不带病运行）
	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logrus.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logrus.Errorf("重新初始化日志失败: %v", err)
		os.Exit(1)
	}

	apiKey, err := cfg.APIKey()
	if err != nil {
		logrus.Errorf("读取凭证失败: %v", err)
		os.Exit(1)
	}
	apiSecret, err := cfg.APISecret()
	if err != nil {
		logrus.Errorf("读取凭证失败: %v", err)
		os.Exit(1)
	}

	logrus.Infof("🚀 启动券商连接引擎... environment=%s endpoint=%s", cfg.Environment, cfg.TradingBaseURL())
	if cfg.Environment == config.EnvironmentLive {
		logrus.Warn("⚠️ 实盘环境：订单将真实成交")
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// REST 传输层（带重试）+ 券商 API 客户端
	transport := httpx.NewClient(httpx.Config{
		BaseURL:     cfg.TradingBaseURL(),
		KeyID:       apiKey,
		SecretKey:   apiSecret,
		Timeout:     cfg.HTTP.Timeout,
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase,
	})
	broker := alpaca.NewClient(transport)

	// 状态管理器 + 对账循环
	stateManager := services.NewStateManager()
	reconciler := services.NewReconciler(broker, stateManager, cfg.Reconcile)

	// 引导：先建立完整基线再开始消费增量事件
	bootCtx, bootCancel := context.WithTimeout(rootCtx, 60*time.Second)
	if err := reconciler.Bootstrap(bootCtx); err != nil {
		bootCancel()
		logrus.Errorf("初始状态引导失败: %v", err)
		os.Exit(1)
	}
	bootCancel()
	reconciler.Start(rootCtx)

	// 私有事件流：Supervisor 负责重连，解码器把事件写入状态管理器
	streamCfg := stream.DefaultConfig()
	streamCfg.URL = cfg.StreamURL()
	streamCfg.KeyID = apiKey
	streamCfg.SecretKey = apiSecret
	streamCfg.BinaryFrames = *binaryFrames

	supervisor := stream.NewSupervisor(streamCfg, stream.StreamTradeUpdates)
	decoder := services.NewStreamDecoder()

	sg := syncgroup.NewSyncGroup()
	sg.Go(func() {
		if err := supervisor.Run(rootCtx); err != nil {
			// 认证失败等致命错误：事件流停摆，只剩轮询对账兜底
			logrus.Errorf("❌ 事件流已停止: %v", err)
		}
	})
	sg.Go(func() {
		decoder.Run(rootCtx, supervisor.Messages(), stateManager)
	})

	// 优雅关闭：停事件流 → 停对账 → 关 REST 连接
	shutdownManager := shutdown.NewManager()
	shutdownManager.OnShutdown(func(ctx context.Context) {
		reconciler.Stop()
	})
	shutdownManager.OnShutdown(func(ctx context.Context) {
		transport.Close()
	})

	logrus.Info("✅ 券商连接引擎已启动，按 Ctrl+C 停止")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("收到停止信号，正在关闭...")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	shutdownManager.Shutdown(shutdownCtx)
	sg.Wait()

	snapshot := stateManager.Snapshot()
	logrus.Infof("✅ 券商连接引擎已停止 version=%d open_orders=%d", snapshot.Version, len(snapshot.OpenOrders))
}
