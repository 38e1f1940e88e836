package discovery

import (
	"context"
	"log"
	"sync"
	"time"

	"edgegate/internal/device"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// バックグラウンド検出の全体タイムアウト
const backgroundScanTimeout = 3 * time.Minute

// Strategy は候補アドレスを生成する検出戦略のインターフェース
// 分類はカスケード側が一律に行うため、戦略は候補の列挙のみを担う
type Strategy interface {
	// Name は戦略の識別名を返す
	Name() string

	// Candidates は分類を試行すべき候補アドレスを返す
	// 失敗した戦略は空リストとエラーを返し、カスケードは続行される
	Candidates(ctx context.Context) ([]device.Address, error)
}

// Status は検出サブシステムの現在状態を表す
type Status struct {
	LastScanAt time.Time `json:"last_scan_at"` // 最後に完了したカスケードの時刻
	LastScanID string    `json:"last_scan_id"` // 最後のカスケードのスキャンID
	Scanning   bool      `json:"scanning"`     // カスケードが実行中かどうか
	Devices    []string  `json:"devices"`      // レジストリ上の既知アドレス
}

// Discoverer は検出カスケードの駆動とスケジューリングを担う
type Discoverer struct {
	classifier device.Classifier
	registry   *device.Registry
	strategies []Strategy
	interval   time.Duration

	// カスケードの同時実行を高々1つに制限するセマフォ
	sem *semaphore.Weighted

	mu         sync.Mutex
	lastScanAt time.Time
	lastScanID string
	scanning   bool
}

// New は新しいDiscovererを作成する
// strategiesは優先順に並んでいること
func New(classifier device.Classifier, registry *device.Registry, strategies []Strategy, interval time.Duration) *Discoverer {
	return &Discoverer{
		classifier: classifier,
		registry:   registry,
		strategies: strategies,
		interval:   interval,
		sem:        semaphore.NewWeighted(1),
	}
}

// Discover は検出カスケードを実行し、見つかったアドレス一覧を返す
// forceがfalseで前回の検出から間隔が経過していない場合、ネットワーク
// アクセスを行わずレジストリの既知アドレスをそのまま返す
func (d *Discoverer) Discover(ctx context.Context, force bool) ([]string, error) {
	if !force && d.fresh() {
		return d.registry.Keys(), nil
	}

	// 実行中のカスケードがあれば完了を待つ
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	// 待機中に別のカスケードが完了した場合はその結果を再利用する
	if !force && d.fresh() {
		return d.registry.Keys(), nil
	}

	return d.runCascade(ctx), nil
}

// TriggerBackground は強制カスケードをリクエスト経路の外で実行する
// 既にカスケードが実行中の場合は何もせずfalseを返す。実行中の
// カスケードがレジストリを更新するため、後続の読み取りはその結果を
// 観測できる
func (d *Discoverer) TriggerBackground() bool {
	if !d.sem.TryAcquire(1) {
		return false
	}

	go func() {
		defer d.sem.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), backgroundScanTimeout)
		defer cancel()

		d.runCascade(ctx)
	}()

	return true
}

// Status は検出サブシステムの現在状態を返す
func (d *Discoverer) Status() Status {
	d.mu.Lock()
	lastScanAt := d.lastScanAt
	lastScanID := d.lastScanID
	scanning := d.scanning
	d.mu.Unlock()

	return Status{
		LastScanAt: lastScanAt,
		LastScanID: lastScanID,
		Scanning:   scanning,
		Devices:    d.registry.Keys(),
	}
}

// fresh は前回のカスケード結果がまだ有効かを返す
func (d *Discoverer) fresh() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return !d.lastScanAt.IsZero() && time.Since(d.lastScanAt) < d.interval
}

// runCascade は全戦略を順に実行する（セマフォ取得済み前提）
// 各候補は一律の分類契約で検証され、成功したものだけがレジストリに
// 登録される。戦略をまたぐ短絡はせず、カバレッジを最大化する
func (d *Discoverer) runCascade(ctx context.Context) []string {
	scanID := uuid.New().String()

	d.mu.Lock()
	d.scanning = true
	d.mu.Unlock()

	found := make([]string, 0)
	attempted := make(map[string]bool)

	for _, strategy := range d.strategies {
		candidates, err := strategy.Candidates(ctx)
		if err != nil {
			log.Printf("検出戦略 %s が失敗しました: %v", strategy.Name(), err)
			continue
		}

		for _, addr := range candidates {
			key := addr.String()

			// このカスケード内で分類済みのアドレスはスキップ
			if attempted[key] {
				continue
			}
			attempted[key] = true

			record, ok := d.classifier.Classify(ctx, addr)
			if !ok {
				continue
			}

			d.registry.Upsert(*record)
			found = append(found, key)
			log.Printf("デバイスを検出しました: %s (戦略: %s)", key, strategy.Name())
		}
	}

	// 発見数に関わらずカスケード完了時刻を記録する
	d.mu.Lock()
	d.lastScanAt = time.Now()
	d.lastScanID = scanID
	d.scanning = false
	d.mu.Unlock()

	log.Printf("検出カスケード完了: %d 台のデバイスを確認 (scan_id=%s)", len(found), scanID)

	return found
}
