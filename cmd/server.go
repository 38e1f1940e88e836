// Package main はEdgegateサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"edgegate/internal/config"
	"edgegate/internal/gateway"
	"edgegate/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8000)")
		configPath = flag.String("config", "", "設定ファイルのパス (YAML)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Edgegate")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// 設定ファイルで上書き
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			log.Fatalf("設定ファイルの読み込みに失敗しました: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("設定の検証に失敗しました: %v", err)
		}
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
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
	log.Printf("Edgegate サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
