package device

import (
	"sort"
	"sync"
)

// Registry は分類済みデバイスのプロセス内レジストリ
// エントリは分類成功時にのみ追加され、自動的に失効しない。
// 一時的にオフラインになったデバイスも「最後に確認できた情報」として
// 保持し、明示的な削除操作でのみ消える
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewRegistry は新しい空のRegistryを作成する
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]Record),
	}
}

// Upsert はレコードを挿入または更新する
// 同一アドレスの既存レコードはスナップショットとLastSeenが置き換わる。
// LastSeenは単調非減少を保証する
func (r *Registry) Upsert(record Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := record.Address.String()
	if existing, ok := r.records[key]; ok && existing.LastSeen.After(record.LastSeen) {
		record.LastSeen = existing.LastSeen
	}
	r.records[key] = record
}

// Get は指定アドレスのレコードを取得する
func (r *Registry) Get(addr Address) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[addr.String()]
	return record, ok
}

// Keys は登録済みアドレスの一覧をソート済みで返す
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.records))
	for key := range r.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// Records は全レコードをアドレス順で返す
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]Record, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Address.String() < records[j].Address.String()
	})

	return records
}

// First は先頭（アドレス順で最小）のデバイスアドレスを返す
// プライマリ解決のフォールバックに使用する
func (r *Registry) First() (Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.records) == 0 {
		return Address{}, false
	}

	var firstKey string
	for key := range r.records {
		if firstKey == "" || key < firstKey {
			firstKey = key
		}
	}

	return r.records[firstKey].Address, true
}

// Any はレジストリにデバイスが存在するかを返す
func (r *Registry) Any() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records) > 0
}

// Len は登録済みデバイス数を返す
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}

// Remove は指定アドレスのレコードを明示的に削除する
func (r *Registry) Remove(addr Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := addr.String()
	if _, ok := r.records[key]; !ok {
		return false
	}
	delete(r.records, key)

	return true
}
