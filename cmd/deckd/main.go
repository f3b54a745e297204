package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/deck-driver/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/deck-driver/internal/config"
	"github.com/taoyao-code/deck-driver/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，空则依次尝试 DECK_CONFIG 与 configs/example.yaml")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 其余交给统一启动流程
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		logger.Error("deckd exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
