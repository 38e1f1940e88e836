// Package device エッジデバイスとの通信と状態管理を担う
//
// # 責務
// - デバイスアドレスとステータスレコードの型定義
// - デバイスのHTTP APIとの通信（ステータス・制御・コマンド・ファイル・画像）
// - ネットワーク上のエンドポイントがデバイスかどうかの判定（分類）
// - 分類済みデバイスのレジストリ管理
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - デバイスのステータスを取得したい
// - デバイスへ制御リクエストを転送したい
// - 検出したエンドポイントがデバイスか確認したい
// - 既知デバイスの一覧を参照・更新したい
//
// # 仕様
// - Client: デバイスのワイヤコントラクト（JSON over HTTP）を実装
// - Classifier: ステータスプローブ → ルートページの2段階分類
// - Registry: "host:port" をキーとする最終確認情報の保持
// - レジストリのエントリは自動削除されない（last known good 方式）
// - Thread-safe な操作をサポート
package device
