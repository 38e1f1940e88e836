package discovery

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"edgegate/internal/device"
)

// 広告由来の候補数の上限。スキャンコストを抑えるための打ち切り
const maxAdvertiseCandidates = 3

// 広告名に含まれていればデバイス候補とみなすマーカー（小文字比較）
var advertiseMarkers = []string{"edge monitor", "edge-monitor", "edgemonitor", "edge_monitor", "esp32"}

// AdvertiseStrategy はmDNSサービス広告からデバイス候補を得る戦略
// ローカルネットワークの _http._tcp サービスを avahi-browse で列挙し、
// 広告名が製品名にマッチするものを候補とする
type AdvertiseStrategy struct {
	timeout time.Duration
}

// NewAdvertiseStrategy は新しいAdvertiseStrategyを作成する
func NewAdvertiseStrategy(timeout time.Duration) *AdvertiseStrategy {
	return &AdvertiseStrategy{timeout: timeout}
}

// Name は戦略の識別名を返す
func (s *AdvertiseStrategy) Name() string {
	return "advertise"
}

// Candidates はavahi-browseの解決済み広告から候補アドレスを返す
// avahi-browseが存在しない環境では空リストとエラーを返す
func (s *AdvertiseStrategy) Candidates(ctx context.Context) ([]device.Address, error) {
	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "avahi-browse", "--terminate", "--resolve", "--parsable", "_http._tcp")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	return parseAvahiOutput(string(output)), nil
}

// parseAvahiOutput はavahi-browseのparsable出力から候補アドレスを抽出する
// 解決済み行の形式:
//
//	=;eth0;IPv4;名前;_http._tcp;local;ホスト名;アドレス;ポート;"txt"
func parseAvahiOutput(output string) []device.Address {
	var candidates []device.Address

	for _, line := range strings.Split(output, "\n") {
		if len(candidates) >= maxAdvertiseCandidates {
			break
		}

		fields := strings.Split(line, ";")
		if len(fields) < 9 || fields[0] != "=" {
			continue
		}

		// IPv6広告は対象外
		if fields[2] != "IPv4" {
			continue
		}

		if !matchesAdvertiseName(fields[3]) {
			continue
		}

		port, err := strconv.Atoi(fields[8])
		if err != nil {
			continue
		}

		addr := device.Address{Host: fields[7], Port: port}
		if addr.Validate() != nil {
			continue
		}

		candidates = append(candidates, addr)
	}

	return candidates
}

// matchesAdvertiseName は広告名が製品名にマッチするかチェックする
func matchesAdvertiseName(name string) bool {
	// avahi-browseはエスケープを含むことがあるため取り除いて比較する
	lower := strings.ToLower(strings.ReplaceAll(name, "\\", ""))
	for _, marker := range advertiseMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
