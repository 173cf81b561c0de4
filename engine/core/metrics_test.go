package core

import "testing"

func TestMetricsAveragesAndSamplesFPS(t *testing.T) {
	m := NewMetrics()
	sampled := false
	// 70 frames of 16ms cross the one second mark once.
	for i := 0; i < 70; i++ {
		if m.Update(0.016) {
			sampled = true
		}
	}
	if !sampled {
		t.Fatal("no FPS sample after more than a second of frames")
	}
	if fps := m.FPS(); fps < 60 || fps > 64 {
		t.Fatalf("FPS = %v, want about 62", fps)
	}
	if ms := m.FrameTime(); ms < 15.9 || ms > 16.1 {
		t.Fatalf("frame time = %v, want 16ms", ms)
	}
}
