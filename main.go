// @title LingoEdu 定级测试后端 API
// @version 1.0
// @description 自适应英语定级测试服务：按答题对错动态调整难度，测完给出分数与CEFR等级。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"lingo_edu_backend/internal/app"
	"lingo_edu_backend/internal/config"
	"lingo_edu_backend/pkg/configwatcher"
	"lingo_edu_backend/pkg/logger"
	"log"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	// AI出题配置支持热更新
	go configwatcher.WatchConfig("configs/config.yaml", application.ReloadAIConfig)

	application.Run()
}
