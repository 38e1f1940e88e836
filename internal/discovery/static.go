package discovery

import (
	"context"

	"edgegate/internal/device"
)

// StaticStrategy は過去によく使われた固定候補アドレスを返す戦略
type StaticStrategy struct {
	candidates []device.Address
}

// NewStaticStrategy は新しいStaticStrategyを作成する
func NewStaticStrategy(candidates []device.Address) *StaticStrategy {
	return &StaticStrategy{candidates: candidates}
}

// Name は戦略の識別名を返す
func (s *StaticStrategy) Name() string {
	return "static"
}

// Candidates は固定候補リストをそのまま返す
func (s *StaticStrategy) Candidates(_ context.Context) ([]device.Address, error) {
	result := make([]device.Address, len(s.candidates))
	copy(result, s.candidates)
	return result, nil
}
