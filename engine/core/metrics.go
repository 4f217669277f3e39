package core

import "time"

const AvgCount = 30

// FrameMetrics keeps a rolling frame time average and a frames-per-second
// counter for one renderer instance.
type FrameMetrics struct {
	counter     int
	msTimes     [AvgCount]float64
	msAvg       float64
	frames      int
	accumulated float64
	fps         float64
}

func (m *FrameMetrics) Update(frameTime time.Duration) {
	frameMS := float64(frameTime) / float64(time.Millisecond)
	m.msTimes[m.counter] = frameMS
	if m.counter == AvgCount-1 {
		sum := 0.0
		for i := 0; i < AvgCount; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(AvgCount)
	}
	m.counter = (m.counter + 1) % AvgCount

	m.accumulated += frameMS
	if m.accumulated > 1000 {
		m.fps = float64(m.frames)
		m.accumulated -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last AvgCount frames.
func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}
