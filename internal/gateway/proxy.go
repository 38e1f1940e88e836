package gateway

import (
	"context"
	"time"

	"edgegate/internal/device"
)

// Timeouts はプロキシ転送の操作クラス別タイムアウト
type Timeouts struct {
	// ステータス・制御系。負荷中のデバイスは応答が遅いことがある
	Control time.Duration

	// 画像取得。ブロックし続けるより古い画像の方が好ましい
	Capture time.Duration
}

// Proxy はプライマリデバイスへのリクエスト転送を担う
// プライマリが解決できなければ即座に失敗し、検出スキャンで
// ブロックすることはない。転送失敗時はバックグラウンド検出を
// 促して次回に備える
type Proxy struct {
	resolve  func() (device.Address, bool)
	client   *device.Client
	timeouts Timeouts

	// onFailure は通信失敗時に呼ばれる（バックグラウンド検出の起動）
	onFailure func()
}

// NewProxy は新しいProxyを作成する
func NewProxy(resolve func() (device.Address, bool), client *device.Client, timeouts Timeouts, onFailure func()) *Proxy {
	return &Proxy{
		resolve:   resolve,
		client:    client,
		timeouts:  timeouts,
		onFailure: onFailure,
	}
}

// Status はプライマリデバイスのステータスを取得する
func (p *Proxy) Status(ctx context.Context) (device.Snapshot, error) {
	addr, ok := p.resolve()
	if !ok {
		return nil, ErrNoDeviceConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Control)
	defer cancel()

	snapshot, err := p.client.Status(callCtx, addr)
	if err != nil {
		return nil, p.failed(addr, "status", err)
	}
	return snapshot, nil
}

// Control はカメラパラメータの変更を転送する
func (p *Proxy) Control(ctx context.Context, variable string, value int) (*device.CommandResult, error) {
	addr, ok := p.resolve()
	if !ok {
		return nil, ErrNoDeviceConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Control)
	defer cancel()

	result, err := p.client.Control(callCtx, addr, variable, value)
	if err != nil {
		return nil, p.failed(addr, "control", err)
	}
	return result, nil
}

// Command は動作コマンドを転送する
func (p *Proxy) Command(ctx context.Context, command string) (*device.CommandResult, error) {
	addr, ok := p.resolve()
	if !ok {
		return nil, ErrNoDeviceConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Control)
	defer cancel()

	result, err := p.client.Command(callCtx, addr, command)
	if err != nil {
		return nil, p.failed(addr, "command", err)
	}
	return result, nil
}

// RecordingConfig は録画設定の変更を転送する
func (p *Proxy) RecordingConfig(ctx context.Context, setting string, value int) (*device.CommandResult, error) {
	addr, ok := p.resolve()
	if !ok {
		return nil, ErrNoDeviceConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Control)
	defer cancel()

	result, err := p.client.RecordingConfig(callCtx, addr, setting, value)
	if err != nil {
		return nil, p.failed(addr, "recording-config", err)
	}
	return result, nil
}

// ApplySettings は設定の一括適用を転送する
func (p *Proxy) ApplySettings(ctx context.Context, settings map[string]any) (*device.CommandResult, error) {
	addr, ok := p.resolve()
	if !ok {
		return nil, ErrNoDeviceConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Control)
	defer cancel()

	result, err := p.client.ApplySettings(callCtx, addr, settings)
	if err != nil {
		return nil, p.failed(addr, "apply-settings", err)
	}
	return result, nil
}

// Files はファイル一覧の取得を転送する
func (p *Proxy) Files(ctx context.Context) (*device.FileList, error) {
	addr, ok := p.resolve()
	if !ok {
		return nil, ErrNoDeviceConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Control)
	defer cancel()

	list, err := p.client.Files(callCtx, addr)
	if err != nil {
		return nil, p.failed(addr, "files", err)
	}
	return list, nil
}

// Capture は静止画の取得を転送する
func (p *Proxy) Capture(ctx context.Context) ([]byte, string, error) {
	addr, ok := p.resolve()
	if !ok {
		return nil, "", ErrNoDeviceConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeouts.Capture)
	defer cancel()

	data, contentType, err := p.client.Capture(callCtx, addr)
	if err != nil {
		return nil, "", p.failed(addr, "capture", err)
	}
	return data, contentType, nil
}

// failed は通信失敗をCommsErrorへ変換し、バックグラウンド検出を促す
func (p *Proxy) failed(addr device.Address, op string, err error) error {
	if p.onFailure != nil {
		p.onFailure()
	}
	return &CommsError{Address: addr, Op: op, Err: err}
}
