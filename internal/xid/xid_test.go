package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		id := New("req")
		assert.True(t, strings.HasPrefix(id, "req-"))
		assert.Len(t, strings.Split(id, "-"), 3)
		_, dup := seen[id]
		assert.False(t, dup, id)
		seen[id] = struct{}{}
	}
}
