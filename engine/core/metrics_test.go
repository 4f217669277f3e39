package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameMetrics(t *testing.T) {
	var m FrameMetrics
	for i := 0; i < AvgCount; i++ {
		m.Update(10 * time.Millisecond)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
	assert.Zero(t, m.FPS())

	for i := 0; i < 100; i++ {
		m.Update(10 * time.Millisecond)
	}
	assert.InDelta(t, 100.0, m.FPS(), 1.0)
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewClock()
	c.now = func() time.Time { return now }

	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	now = now.Add(16 * time.Millisecond)
	c.Update()
	assert.Equal(t, 16*time.Millisecond, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 16*time.Millisecond, c.Elapsed())
}
