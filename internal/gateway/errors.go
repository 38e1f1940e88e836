package gateway

import (
	"errors"
	"fmt"

	"edgegate/internal/device"
)

// ErrNoDeviceConfigured はプライマリデバイスが解決できないことを示す
// 永続設定もレジストリのエントリも存在しない場合に返される
var ErrNoDeviceConfigured = errors.New("対象デバイスが設定されていません")

// ErrConfigPersist は永続設定の書き込み失敗を示す
// この場合メモリ上の設定は変更前のまま維持される
var ErrConfigPersist = errors.New("デバイス設定の永続化に失敗しました")

// CommsError はデバイスとの通信失敗（接続拒否・タイムアウト・
// 不正な応答）を表す。原因のテキストを保持したまま呼び出し側へ
// 一律に伝搬される
type CommsError struct {
	Address device.Address // 通信先アドレス
	Op      string         // 失敗した操作名
	Err     error          // 根本原因
}

// Error はエラーメッセージを返す
func (e *CommsError) Error() string {
	return fmt.Sprintf("デバイス %s との通信に失敗 (%s): %v", e.Address, e.Op, e.Err)
}

// Unwrap は根本原因のエラーを返す
func (e *CommsError) Unwrap() error {
	return e.Err
}
