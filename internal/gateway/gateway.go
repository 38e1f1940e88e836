package gateway

import (
	"context"
	"fmt"
	"log"

	"edgegate/internal/config"
	"edgegate/internal/device"
	"edgegate/internal/discovery"
)

// Gateway はレジストリ・永続設定・検出器を束ねるコンテキストオブジェクト
// プロセス全体で共有される可変状態はすべてここが所有し、各ハンドラへ
// 明示的に渡される。隠れたグローバル状態は持たない
type Gateway struct {
	Registry   *device.Registry
	Store      *Store
	Discoverer *discovery.Discoverer
	Classifier device.Classifier
	Client     *device.Client
	Proxy      *Proxy
}

// New は設定からGatewayを組み立てる
// 永続設定はここで一度だけ読み込まれ、以降はメモリ上のミラーを参照する
func New(cfg *config.Config) (*Gateway, error) {
	client := device.NewClient()
	classifier := device.NewHTTPClassifier(client)
	registry := device.NewRegistry()

	// 固定候補リストの解析
	staticCandidates := make([]device.Address, 0, len(cfg.Discovery.StaticCandidates))
	for _, s := range cfg.Discovery.StaticCandidates {
		addr, err := device.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("固定候補 %q が不正: %w", s, err)
		}
		staticCandidates = append(staticCandidates, addr)
	}

	// 戦略は優先順: サービス広告 → 固定候補 → サブネットスイープ
	strategies := []discovery.Strategy{
		discovery.NewAdvertiseStrategy(cfg.Discovery.AdvertiseTimeout),
		discovery.NewStaticStrategy(staticCandidates),
		discovery.NewSweepStrategy(cfg.Discovery.SweepHostLimit, cfg.Discovery.SweepPorts),
	}

	discoverer := discovery.New(classifier, registry, strategies, cfg.Discovery.Interval)
	store := NewStore(cfg.Device.ConfigPath, client, cfg.Device.ValidateTimeout)

	// 起動時に永続設定を読み込む。失敗しても未設定として続行する
	if addr, err := store.Load(); err != nil {
		log.Printf("永続設定の読み込みに失敗しました（未設定として続行）: %v", err)
	} else if addr != nil {
		log.Printf("永続設定を読み込みました: %s", addr)
	}

	g := &Gateway{
		Registry:   registry,
		Store:      store,
		Discoverer: discoverer,
		Classifier: classifier,
		Client:     client,
	}

	g.Proxy = NewProxy(g.ResolvePrimary, client, Timeouts{
		Control: cfg.Device.ControlTimeout,
		Capture: cfg.Device.CaptureTimeout,
	}, func() {
		discoverer.TriggerBackground()
	})

	return g, nil
}

// ResolvePrimary はプロキシ対象のプライマリデバイスを解決する
// 操作者が明示的に設定したアドレスが常に優先され、なければ
// レジストリの先頭エントリへフォールバックする
func (g *Gateway) ResolvePrimary() (device.Address, bool) {
	if addr, ok := g.Store.Current(); ok {
		return addr, true
	}
	if addr, ok := g.Registry.First(); ok {
		return addr, true
	}
	return device.Address{}, false
}

// AddDevice は手動追加されたアドレスを検証してレジストリへ登録する
// 分類に失敗した場合は登録せずエラーを返す
func (g *Gateway) AddDevice(ctx context.Context, addr device.Address) (*device.Record, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	record, ok := g.Classifier.Classify(ctx, addr)
	if !ok {
		return nil, &CommsError{Address: addr, Op: "classify", Err: fmt.Errorf("エッジデバイスとして確認できませんでした")}
	}

	g.Registry.Upsert(*record)
	log.Printf("デバイスを手動登録しました: %s", addr)

	return record, nil
}
