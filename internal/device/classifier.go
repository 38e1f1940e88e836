package device

import (
	"context"
	"strings"
	"time"
)

// ステータスペイロードにいずれかが含まれていればデバイスと判定する
var signalFields = []string{"device_type", "camera_ready", "sd_ready", "wifi_connected"}

// ルートページに含まれる製品マーカー。小文字で比較する
var rootMarkers = []string{"edge monitor", "edge_monitor", "edgemonitor", "esp32"}

// HTTPClassifier は2段階のHTTPプローブでエンドポイントを分類する
//  1. ステータスAPIが構造化ペイロードを返し、既知のシグナル項目を
//     含んでいればデバイスと確定する
//  2. ルートページに製品マーカーが含まれていれば、楽観的なデフォルト
//     ステータスを合成してデバイスとみなす（ヒューリスティックであり
//     検証済みの状態ではない）
type HTTPClassifier struct {
	client        *Client
	statusTimeout time.Duration
	rootTimeout   time.Duration
}

// NewHTTPClassifier は新しいHTTPClassifierを作成する
func NewHTTPClassifier(client *Client) *HTTPClassifier {
	return &HTTPClassifier{
		client:        client,
		statusTimeout: 3 * time.Second,
		rootTimeout:   2 * time.Second,
	}
}

// Classify は指定アドレスがエッジデバイスかどうかを判定する
// プローブの失敗はエスカレーションせず「デバイスではない」として扱う
func (c *HTTPClassifier) Classify(ctx context.Context, addr Address) (*Record, bool) {
	// 第1段階: ステータスプローブ
	statusCtx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	if snapshot, err := c.client.Status(statusCtx, addr); err == nil && hasSignalField(snapshot) {
		return &Record{
			Address:  addr,
			LastSeen: time.Now(),
			Snapshot: snapshot,
		}, true
	}

	// 第2段階: ルートページの製品マーカー判定
	rootCtx, cancel := context.WithTimeout(ctx, c.rootTimeout)
	defer cancel()

	if body, err := c.client.Root(rootCtx, addr); err == nil && containsMarker(body) {
		return &Record{
			Address:  addr,
			LastSeen: time.Now(),
			Snapshot: optimisticSnapshot(),
		}, true
	}

	return nil, false
}

// hasSignalField はペイロードにシグナル項目が含まれるかチェックする
func hasSignalField(snapshot Snapshot) bool {
	for _, field := range signalFields {
		if _, ok := snapshot[field]; ok {
			return true
		}
	}
	return false
}

// containsMarker は本文に製品マーカーが含まれるかチェックする
func containsMarker(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range rootMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// optimisticSnapshot はマーカー判定時に合成するデフォルトステータスを返す
// 実際の状態は未検証のため、あくまで暫定値
func optimisticSnapshot() Snapshot {
	return Snapshot{
		"device_type":    "edge_monitor",
		"camera_ready":   true,
		"sd_ready":       true,
		"wifi_connected": true,
	}
}

// MockClassifier はテスト用のモックClassifier実装
type MockClassifier struct {
	// Records は分類成功とみなすアドレスとその結果
	Records map[string]*Record

	// Calls は分類を試行したアドレスの記録
	Calls []string
}

// NewMockClassifier は新しいMockClassifierを作成する
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		Records: make(map[string]*Record),
	}
}

// AddDevice はテスト用に分類成功するデバイスを登録する
func (m *MockClassifier) AddDevice(addr Address, snapshot Snapshot) {
	m.Records[addr.String()] = &Record{
		Address:  addr,
		LastSeen: time.Now(),
		Snapshot: snapshot,
	}
}

// Classify は登録済みアドレスのみ分類成功を返す
func (m *MockClassifier) Classify(_ context.Context, addr Address) (*Record, bool) {
	m.Calls = append(m.Calls, addr.String())

	record, ok := m.Records[addr.String()]
	if !ok {
		return nil, false
	}

	// コピーを返す
	result := *record
	result.LastSeen = time.Now()
	return &result, true
}
