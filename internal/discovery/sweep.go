package discovery

import (
	"context"
	"fmt"
	"net"

	"edgegate/internal/device"
)

// SweepStrategy は自ホストの/24サブネットを総当たりする戦略
// 候補数はホスト上限 × ポート数で制限され、スキャンの所要時間を
// 予測可能に保つ
type SweepStrategy struct {
	hostLimit int
	ports     []int

	// localIP は自ホストのIPv4アドレスを返す。テストで差し替え可能
	localIP func() (net.IP, error)
}

// NewSweepStrategy は新しいSweepStrategyを作成する
func NewSweepStrategy(hostLimit int, ports []int) *SweepStrategy {
	return &SweepStrategy{
		hostLimit: hostLimit,
		ports:     ports,
		localIP:   localIPv4,
	}
}

// Name は戦略の識別名を返す
func (s *SweepStrategy) Name() string {
	return "sweep"
}

// Candidates は/24サブネット先頭から上限数までのホストとポートの
// 組み合わせを返す。自ホストはスキップする
func (s *SweepStrategy) Candidates(_ context.Context) ([]device.Address, error) {
	ip, err := s.localIP()
	if err != nil {
		return nil, fmt.Errorf("ローカルアドレスの取得に失敗: %w", err)
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("IPv4アドレスではありません: %s", ip)
	}

	var candidates []device.Address
	for i := 1; i <= s.hostLimit && i <= 254; i++ {
		host := fmt.Sprintf("%d.%d.%d.%d", ip4[0], ip4[1], ip4[2], i)
		if host == ip4.String() {
			continue
		}

		for _, port := range s.ports {
			candidates = append(candidates, device.Address{Host: host, Port: port})
		}
	}

	return candidates, nil
}

// localIPv4 は自ホストの外向きIPv4アドレスを取得する
// UDPのDialは実際にはパケットを送信せず、経路選択の結果だけを得る
func localIPv4() (net.IP, error) {
	conn, err := net.Dial("udp4", "192.0.2.1:80")
	if err == nil {
		defer func() {
			_ = conn.Close()
		}()
		if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !udpAddr.IP.IsLoopback() {
			return udpAddr.IP, nil
		}
	}

	// フォールバック: インターフェース列挙から最初の非ループバックIPv4を選ぶ
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	return nil, fmt.Errorf("利用可能なIPv4アドレスが見つかりません")
}
