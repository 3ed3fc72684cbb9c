package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"photoai/api"
	"photoai/internal/config"
	"photoai/internal/infra"
	"photoai/internal/logger"
	"photoai/internal/metrics"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// dbStatsInterval 连接池指标上报间隔
const dbStatsInterval = 15 * time.Second

func main() {
	// 0. 统一加载 .env
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
	)

	// 3. 初始化数据库（driver=none 时只写 JSONL）
	db, err := infra.OpenDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	if db != nil && cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(db, &metrics.AiMetricRecord{}); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	}

	// 4. 组装 AI 调用链
	container, err := api.BuildContainer(cfg, db)
	if err != nil {
		logger.Fatal("初始化依赖失败", zap.Error(err))
	}
	container.Start()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	startDBStats(bgCtx, db)

	// 5. 创建 HTTP 服务器
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.SetupRouter(container),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 6. 优雅关闭
	gracefulShutdown(server, container, db)
}

func startDBStats(ctx context.Context, db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warn("获取连接池失败，跳过连接池指标", zap.Error(err))
		return
	}
	metrics.StartDBStatsReporter(ctx, sqlDB, dbStatsInterval)
}

// loadEnvFile 从当前目录向上查找 .env 并加载
func loadEnvFile() {
	path := resolveEnvPath()
	if path == "" {
		fmt.Println("未找到 .env 文件，将仅使用系统环境变量和 config/* 配置")
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		return
	}
	fmt.Printf("已加载环境变量文件: %s\n", path)
}

func resolveEnvPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := filepath.Clean(wd)
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// gracefulShutdown 先停止接收请求，再排空遥测队列，最后关闭数据库
func gracefulShutdown(server *http.Server, container *api.AppContainer, db *gorm.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if err := container.Close(ctx); err != nil {
		logger.Error("遥测队列排空异常", zap.Error(err))
	}

	if err := infra.CloseDatabase(db); err != nil {
		logger.Error("数据库关闭异常", zap.Error(err))
	}

	logger.Info("服务器已安全关闭")
}
