package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edgegate/internal/config"
	"edgegate/internal/gateway"

	"github.com/gin-gonic/gin"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	gateway    *gateway.Gateway
	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, gw *gateway.Gateway) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	srv := &Server{
		config:  cfg,
		gateway: gw,
		engine:  engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	srv.setupRoutes()

	return srv
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	handler := &Handler{config: s.config, gateway: s.gateway}

	// ヘルスチェックエンドポイント
	s.engine.GET("/health", handler.HealthCheck)

	api := s.engine.Group("/api")
	{
		// ゲートウェイ状態
		api.GET("/status", handler.GetStatus)

		// デバイス検出
		api.POST("/discover", handler.Discover)
		api.GET("/discovery", handler.GetDiscovery)

		// レジストリ
		api.GET("/devices", handler.GetDevices)
		api.POST("/devices", handler.AddDevice)

		// プライマリデバイス設定
		api.GET("/device/config", handler.GetDeviceConfig)
		api.POST("/device/config", handler.SetDeviceConfig)

		// プロキシエンドポイント
		api.GET("/device/status", handler.ProxyStatus)
		api.POST("/device/control", handler.ProxyControl)
		api.POST("/device/command", handler.ProxyCommand)
		api.POST("/device/recording-config", handler.ProxyRecordingConfig)
		api.POST("/device/apply-settings", handler.ProxyApplySettings)
		api.GET("/device/files", handler.ProxyFiles)
		api.GET("/device/capture", handler.ProxyCapture)
	}
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
