package xid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorFormat(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator(func() time.Time { return at })

	assert.Equal(t, "SALE-1772366400000", gen.New(PrefixSale))
}

func TestGeneratorNeverRepeatsWithinSameMillisecond(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator(func() time.Time { return at })

	first := gen.New(PrefixSale)
	second := gen.New(PrefixReturn)

	require.NotEqual(t, strings.TrimPrefix(first, "SALE-"), strings.TrimPrefix(second, "RET-"))
	assert.Equal(t, "RET-1772366400001", second)
}

func TestKeyIsUnique(t *testing.T) {
	assert.NotEqual(t, Key(), Key())
}
