package main

import (
	"context"
	"log"
	"os"

	"edgegate/internal/config"
	"edgegate/internal/gateway"
	"edgegate/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// ゲートウェイを組み立てる
	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("ゲートウェイの初期化に失敗しました: %v", err)
	}

	// サーバーを作成
	srv := server.New(cfg, gw)

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
		os.Exit(1)
	}
}
