package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"basis-trader-go/config"
	"basis-trader-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/basis_trader.yaml", "配置文件路径")
	envFile := flag.String("env-file", ".env", "环境变量文件，不存在则忽略")
	dryRun := flag.Bool("dryRun", false, "纸面撮合，不向交易所发单")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("加载 env 失败: %v", err)
	}
	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *dryRun {
		applyDryRun(&cfg)
	}

	c := container.New(cfg, *cfgPath)
	if err := c.Build(); err != nil {
		log.Fatalf("构建失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	// systemd Type=notify；非 systemd 环境下 SdNotify 返回 false
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify ready: %v", err)
	}
	go watchdog(ctx, c)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if err := c.Stop(); err != nil {
		log.Printf("停止时出错: %v", err)
		os.Exit(1)
	}
}

// watchdog 仅在健康检查通过时喂狗，卡死或组件失联由 systemd 重启
func watchdog(ctx context.Context, c *container.Container) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				log.Printf("health check failed: %v", err)
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

// applyDryRun 切到纸面撮合：订单照常流经本地 OMS，但不接下游通道。
func applyDryRun(cfg *config.AppConfig) {
	cfg.PaperTrading = true
}
