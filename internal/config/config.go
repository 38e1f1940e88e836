package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Device    DeviceConfig    `yaml:"device"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// DiscoveryConfig はデバイス検出関連の設定
type DiscoveryConfig struct {
	// 検出結果を再利用する最小間隔。この間隔内の再検出はキャッシュを返す
	Interval time.Duration `yaml:"interval"`

	// サブネットスイープで試行するホストアドレス数の上限
	SweepHostLimit int `yaml:"sweep_host_limit"`

	// スイープ時に試行するポート一覧
	SweepPorts []int `yaml:"sweep_ports"`

	// 過去によく使われたアドレスの固定候補リスト ("ip:port" 形式)
	StaticCandidates []string `yaml:"static_candidates"`

	// avahi-browse の実行タイムアウト
	AdvertiseTimeout time.Duration `yaml:"advertise_timeout"`
}

// DeviceConfig はデバイス通信関連の設定
type DeviceConfig struct {
	// 選択デバイス設定の永続化先ファイルパス
	ConfigPath string `yaml:"config_path"`

	// 設定保存前の到達性検証タイムアウト（デバイスは処理中で遅いことがある）
	ValidateTimeout time.Duration `yaml:"validate_timeout"`

	// ステータス・制御系プロキシのタイムアウト
	ControlTimeout time.Duration `yaml:"control_timeout"`

	// 画像取得プロキシのタイムアウト（ブロックするより古い画像の方がまし）
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

// Load は設定を読み込む
// デフォルト値を環境変数で上書きし、EDGEGATE_CONFIG が指す
// YAMLファイルがあればさらに上書きする
func Load() (*Config, error) {
	cfg := Default()

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Discovery.Interval = getEnvAsDurationOrDefault("DISCOVERY_INTERVAL", cfg.Discovery.Interval)
	cfg.Device.ConfigPath = getEnvOrDefault("DEVICE_CONFIG_PATH", cfg.Device.ConfigPath)

	// 設定ファイルによる上書き
	if path := os.Getenv("EDGEGATE_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // 画像プロキシ用にタイムアウト無効化
		},
		Discovery: DiscoveryConfig{
			Interval:       60 * time.Second,
			SweepHostLimit: 30,
			SweepPorts:     []int{80, 8080},
			StaticCandidates: []string{
				"192.168.1.52:80",
				"192.168.1.100:80",
				"192.168.4.1:80",
				"10.0.0.52:80",
			},
			AdvertiseTimeout: 5 * time.Second,
		},
		Device: DeviceConfig{
			ConfigPath:      "device_config.json",
			ValidateTimeout: 15 * time.Second,
			ControlTimeout:  15 * time.Second,
			CaptureTimeout:  10 * time.Second,
		},
	}
}

// LoadFile はYAMLファイルから設定を読み込み、既存の値を上書きする
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("YAMLの解析に失敗: %w", err)
	}

	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// 検出設定の検証
	if c.Discovery.Interval <= 0 {
		return fmt.Errorf("検出間隔は正の値が必要: %v", c.Discovery.Interval)
	}
	if c.Discovery.SweepHostLimit < 1 || c.Discovery.SweepHostLimit > 254 {
		return fmt.Errorf("無効なスイープ上限: %d", c.Discovery.SweepHostLimit)
	}
	if len(c.Discovery.SweepPorts) == 0 {
		return fmt.Errorf("スイープ対象ポートが設定されていません")
	}
	for _, p := range c.Discovery.SweepPorts {
		if p < 1 || p > 65535 {
			return fmt.Errorf("無効なスイープポート: %d", p)
		}
	}

	// デバイス設定の検証
	if c.Device.ConfigPath == "" {
		return fmt.Errorf("デバイス設定の保存先パスが設定されていません")
	}
	if c.Device.ValidateTimeout <= 0 || c.Device.ControlTimeout <= 0 || c.Device.CaptureTimeout <= 0 {
		return fmt.Errorf("タイムアウトは正の値が必要")
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault は環境変数を時間として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
