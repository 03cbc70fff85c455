package xid

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	PrefixSale     = "SALE"
	PrefixPurchase = "PURCH"
	PrefixReturn   = "RET"
	PrefixCancel   = "CANCEL"
	PrefixManual   = "TRX"
	PrefixOrder    = "OS"
)

// Generator issues ids of the form PREFIX-<unix millis>. Stamps never repeat
// within one generator, even when two ids are requested in the same millisecond.
type Generator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

func (g *Generator) New(prefix string) string {
	g.mu.Lock()
	stamp := g.now().UnixMilli()
	if stamp <= g.last {
		stamp = g.last + 1
	}
	g.last = stamp
	g.mu.Unlock()
	return fmt.Sprintf("%s-%d", prefix, stamp)
}

var defaultGenerator = NewGenerator(nil)

func New(prefix string) string {
	return defaultGenerator.New(prefix)
}

// Key returns an opaque random key for records without a business prefix.
func Key() string {
	return uuid.NewString()
}
