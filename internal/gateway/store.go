package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"edgegate/internal/device"
)

// Store は操作者が選択したプライマリデバイス設定の永続化を担う
// ディスク上の単一JSONレコードを正とし、高速な読み取りのために
// メモリ上へミラーする。保存失敗時はミラーを変更しない
type Store struct {
	path            string
	client          *device.Client
	validateTimeout time.Duration

	mu      sync.RWMutex
	current *device.Address
}

// NewStore は新しいStoreを作成する
func NewStore(path string, client *device.Client, validateTimeout time.Duration) *Store {
	return &Store{
		path:            path,
		client:          client,
		validateTimeout: validateTimeout,
	}
}

// Load はディスクから設定を読み込みミラーへ反映する
// ファイルが存在しない場合は「未設定」としてnilを返す
func (s *Store) Load() (*device.Address, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	var addr device.Address
	if err := json.Unmarshal(data, &addr); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	if err := addr.Validate(); err != nil {
		return nil, fmt.Errorf("保存された設定が不正: %w", err)
	}

	s.mu.Lock()
	s.current = &addr
	s.mu.Unlock()

	return &addr, nil
}

// Save は到達性を検証してから設定を永続化する
// デバイスは処理中で応答が遅いことがあるため、検証には長めの
// タイムアウトを使う。検証失敗はCommsError、書き込み失敗は
// ErrConfigPersistとして返し、いずれの場合もミラーは変更しない
func (s *Store) Save(ctx context.Context, addr device.Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}

	// 到達性の検証
	probeCtx, cancel := context.WithTimeout(ctx, s.validateTimeout)
	defer cancel()

	if _, err := s.client.Status(probeCtx, addr); err != nil {
		return &CommsError{Address: addr, Op: "validate", Err: err}
	}

	// 原子的な書き込み
	if err := s.persist(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigPersist, err)
	}

	s.mu.Lock()
	saved := addr
	s.current = &saved
	s.mu.Unlock()

	return nil
}

// Current はメモリ上のミラーから現在の設定を返す
func (s *Store) Current() (device.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return device.Address{}, false
	}
	return *s.current, true
}

// persist は一時ファイルへ書き込んでからリネームする
// クラッシュ時に中途半端なレコードを残さないための手順
func (s *Store) persist(addr device.Address) error {
	data, err := json.Marshal(addr)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".device_config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return nil
}
