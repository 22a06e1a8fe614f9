package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	batches := Batch(items, 3)
	assert.Len(t, batches, 3)
	assert.Equal(t, []int{1, 2, 3}, batches[0])
	assert.Equal(t, []int{7}, batches[2])

	assert.Len(t, Batch(items, 10), 1)
	assert.Empty(t, Batch([]int{}, 3))

	// A non-positive size must not loop forever.
	assert.Len(t, Batch([]int{1, 2}, 0), 2)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc...", TruncateString("abcdefg", 3))
	assert.Equal(t, "héllo", TruncateString("héllo", 5))
}
