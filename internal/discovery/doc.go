// Package discovery ネットワーク上のエッジデバイス検出を担う
//
// # 責務
// - 候補アドレスを生成する検出戦略（サービス広告・固定候補・サブネットスイープ）
// - 戦略を優先順で実行し、一律の分類器で検証するカスケード駆動
// - 検出間隔によるスロットリングとキャッシュ再利用
// - バックグラウンド検出の単一実行保証
//
// # 仕様
// - 戦略は候補アドレスのみを返し、分類はカスケード側で一律に行う
// - 戦略の失敗は空の候補リストとして扱い、ログに記録して続行する
// - スロットル内の再検出はネットワークアクセスなしでレジストリを返す
// - 同時に実行されるカスケードは容量1のセマフォにより高々1つ
// - サービス広告の参照には avahi-browse コマンドを使用する
package discovery
