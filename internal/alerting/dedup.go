package alerting

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// Outcome is what happened to one alert candidate.
type Outcome string

const (
	OutcomeAlerted   Outcome = "alerted"
	OutcomeCooldown  Outcome = "cooldown_skipped"
	OutcomeCap       Outcome = "cap_skipped"
	OutcomeDuplicate Outcome = "duplicate_skipped"
	OutcomeFailed    Outcome = "failed"
)

// DedupKey derives a stable key from the entity, the signal kind and the
// reason set. Reason order does not matter.
func DedupKey(entity, kind string, reasons []string) string {
	sorted := append([]string(nil), reasons...)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return kind + ":" + entity + ":" + hex.EncodeToString(sum[:8])
}

// CooldownElapsed reports whether an entity last alerted at last may alert
// again at now. A nil last means it never alerted.
func CooldownElapsed(last *time.Time, window time.Duration, now time.Time) bool {
	if last == nil || last.IsZero() {
		return true
	}
	return !now.Before(last.Add(window))
}

// KeySet remembers the dedup keys already used in one sweep run.
type KeySet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]struct{})}
}

// Add returns false when key was already added.
func (k *KeySet) Add(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.seen[key]; ok {
		return false
	}
	k.seen[key] = struct{}{}
	return true
}

func (k *KeySet) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.seen)
}

// Budget caps the number of alerts a sweep run may emit.
type Budget struct {
	mu    sync.Mutex
	limit int
	used  int
}

func NewBudget(limit int) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// TryTake consumes one unit and reports whether one was left.
func (b *Budget) TryTake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// Refund gives back a unit taken for an alert that was never delivered.
func (b *Budget) Refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used > 0 {
		b.used--
	}
}

func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit - b.used
}

func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
