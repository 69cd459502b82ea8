package mjpeg

import (
	"testing"
	"time"
)

// TestServerDropMonitor_TriggersDowngradeOnHighDropRatio covers the
// server-drop downgrade case: within one fps-sized window the server encodes
// 25 frames and drops 5 more it chose not to encode. The 5/30 drop ratio
// clears serverDowngradeDropFactor, so the monitor fires decreaseBitRate
// exactly once and resets its window counters.
func TestServerDropMonitor_TriggersDowngradeOnHighDropRatio(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	clock.advance(int64(4 * time.Second)) // clear of warm-up
	c.fps = 25
	c.byteRate = 1_000_000
	c.eval = qualityEval{}
	c.server.numFramesEncoded = 25
	c.server.numFramesDropped = 5

	c.serverDropMonitor(25)

	if c.server.numFramesEncoded != 0 || c.server.numFramesDropped != 0 {
		t.Fatalf("expected server counters reset after the monitor runs, got %+v", c.server)
	}
	if !c.eval.active || c.eval.kind != evalDowngrade {
		t.Fatalf("expected decreaseBitRate to start a DOWNGRADE eval, got %+v", c.eval)
	}
}

// TestServerDropMonitor_NoopBelowDropThreshold confirms the monitor only
// resets its window, without downgrading, when the drop ratio stays under
// serverDowngradeDropFactor.
func TestServerDropMonitor_NoopBelowDropThreshold(t *testing.T) {
	clock := &fakeClock{nowNano: 1}
	c := newTestController(clock)
	c.fps = 25
	c.byteRate = 1_000_000
	c.eval = qualityEval{}
	c.server.numFramesEncoded = 29
	c.server.numFramesDropped = 1

	c.serverDropMonitor(25)

	if c.eval.active {
		t.Fatal("expected no downgrade below the drop-ratio threshold")
	}
	if c.server.numFramesEncoded != 0 || c.server.numFramesDropped != 0 {
		t.Fatalf("expected the window to reset regardless, got %+v", c.server)
	}
}

// TestServerDropMonitor_WaitsForEnoughEncodedFrames confirms the monitor
// takes no action at all, not even a window reset, until numFramesEncoded
// reaches the evaluation fps.
func TestServerDropMonitor_WaitsForEnoughEncodedFrames(t *testing.T) {
	clock := &fakeClock{nowNano: 1}
	c := newTestController(clock)
	c.fps = 25
	c.server.numFramesEncoded = 10
	c.server.numFramesDropped = 5

	c.serverDropMonitor(25)

	if c.server.numFramesEncoded != 10 || c.server.numFramesDropped != 5 {
		t.Fatalf("expected counters untouched before enough frames are encoded, got %+v", c.server)
	}
}

// TestNotifyServerFrameDrop_IncrementsAndEvaluates confirms the exported
// drop-reporting hook both records the drop and immediately re-runs the
// monitor, instead of only bumping the counter and waiting for the next
// frame's adjustParamsToBitRate pass.
func TestNotifyServerFrameDrop_IncrementsAndEvaluates(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	clock.advance(int64(4 * time.Second))
	c.fps = 25
	c.byteRate = 1_000_000
	c.eval = qualityEval{}
	c.server.numFramesEncoded = 25
	c.server.numFramesDropped = 4

	c.NotifyServerFrameDrop()

	if c.server.numFramesDropped != 0 {
		t.Fatalf("expected the window to reset after evaluating, got %+v", c.server)
	}
	if !c.eval.active || c.eval.kind != evalDowngrade {
		t.Fatalf("expected the 5th drop (5/30) to cross the threshold and downgrade, got %+v", c.eval)
	}
}
