// Package gateway プライマリデバイスの選択とリクエスト転送を担う
//
// # 責務
// - レジストリ・永続設定・検出器を束ねるコンテキストオブジェクト
// - 操作者が選択したデバイス設定の永続化と起動時読み込み
// - プライマリデバイスの解決（永続設定 → レジストリの順）
// - プロキシ転送とタイムアウト・エラー変換ポリシー
//
// # 仕様
// - 永続設定は固定パスの単一JSONレコード ({ip, port})
// - 保存は到達性検証後に一時ファイル + リネームで原子的に行う
// - 明示的な操作者の選択は検出結果より常に優先される
// - 転送失敗は一律 CommsError に変換され、呼び出し側に必ず伝搬する
// - プロキシは自動リトライしない。リトライは呼び出し側の判断
package gateway
