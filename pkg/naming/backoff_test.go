package naming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffBound(t *testing.T) {
	b := newBackoff(10*time.Millisecond, 80*time.Millisecond, 2)
	expected := []time.Duration{10, 20, 40, 80, 80, 80}
	for i, want := range expected {
		assert.Equal(t, want*time.Millisecond, b.Next(), "attempt %d", i)
	}
	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, b.Next(), 80*time.Millisecond)
	}

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.Next())
}

func TestBackoffDefaults(t *testing.T) {
	b := newBackoff(0, 0, 0)
	assert.Equal(t, 100*time.Millisecond, b.Next())
	assert.Equal(t, 100*time.Millisecond, b.Next())

	huge := newBackoff(time.Hour, 2*time.Hour, 1e12)
	huge.Next()
	assert.Equal(t, 2*time.Hour, huge.Next())
}
