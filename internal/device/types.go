package device

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Address はデバイスのネットワークアドレスを表す
type Address struct {
	Host string `json:"ip" yaml:"ip"`     // ホスト（IPアドレスまたはホスト名）
	Port int    `json:"port" yaml:"port"` // ポート番号
}

// String は "host:port" 形式の文字列を返す。レジストリのキーとして使う
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// BaseURL はデバイスAPIのベースURLを返す
func (a Address) BaseURL() string {
	return "http://" + a.String()
}

// Validate はアドレスの妥当性を検証する
func (a Address) Validate() error {
	if a.Host == "" {
		return fmt.Errorf("ホストが指定されていません")
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", a.Port)
	}
	return nil
}

// ParseAddress は "host:port" 形式の文字列をAddressに変換する
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("アドレスの解析に失敗: %w", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("ポート番号の解析に失敗: %w", err)
	}

	addr := Address{Host: host, Port: port}
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}

	return addr, nil
}

// Snapshot はデバイスが自己申告するステータスペイロードを表す
// キーはファームウェア依存のため不透明なデータとして保持する
type Snapshot map[string]any

// Record はレジストリに保持されるデバイス情報
type Record struct {
	Address  Address   `json:"address"`   // デバイスのアドレス
	LastSeen time.Time `json:"last_seen"` // 最後に分類に成功した時刻
	Snapshot Snapshot  `json:"snapshot"`  // 最後に観測したステータス
}

// Classifier はネットワークエンドポイントの分類機能を提供する
type Classifier interface {
	// Classify は指定アドレスがエッジデバイスかどうかを判定する
	// デバイスの場合はステータスを含むレコードを返す
	Classify(ctx context.Context, addr Address) (*Record, bool)
}
