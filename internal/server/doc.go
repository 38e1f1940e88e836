// Package server ゲートウェイのHTTP APIを提供する
//
// # 責務
// - HTTPサーバーの起動と管理
// - デバイス検出・登録・設定のAPIエンドポイント
// - デバイス操作のプロキシエンドポイント
// - 通信失敗の呼び出し側向けエラー応答への変換
//
// # 仕様
// - ルーティングにgin-gonic/ginを使用
// - プライマリ未解決は503 (no_device_configured)
// - デバイス通信失敗は503 (device_unreachable) + 原因テキスト
// - グレースフルシャットダウンに対応
package server
