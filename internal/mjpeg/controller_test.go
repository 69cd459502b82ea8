package mjpeg

import (
	"testing"
	"time"
)

func newTestController(clock *fakeClock) *RateControl {
	return NewRateControl(Config{
		StartingBitRate: 8_000_000,
		MinByteRate:     100_000,
		MaxByteRate:     2_500_000,
		Clock:           clock,
	})
}

func TestNewRateControl_ConstructionDefaults(t *testing.T) {
	clock := &fakeClock{nowNano: 1}
	c := newTestController(clock)

	if c.byteRate != 1_000_000 {
		t.Fatalf("byteRate = %d, want 1000000 (8Mbps/8)", c.byteRate)
	}
	if c.qualityID != medianQualityID {
		t.Fatalf("qualityID = %d, want %d", c.qualityID, medianQualityID)
	}
	if c.fps != constructionFPS {
		t.Fatalf("fps = %d, want %d", c.fps, constructionFPS)
	}
	if !c.eval.active {
		t.Fatal("expected an evaluation to start immediately at construction")
	}
	if c.eval.maxQualityID != maxQualityID || c.eval.maxQualityFPS != MaxFPS {
		t.Fatalf("eval ceiling clamp = (%d, %v), want (%d, %v)",
			c.eval.maxQualityID, c.eval.maxQualityFPS, maxQualityID, float64(MaxFPS))
	}
	if c.warmupStartTime == 0 {
		t.Fatal("expected warmupStartTime to be stamped")
	}
}

// TestDecreaseBitRate_SuppressedDuringWarmup covers the warm-up suppression
// case: a confirmed negative signal inside the warm-up window must not move
// byteRate at all.
func TestDecreaseBitRate_SuppressedDuringWarmup(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	c.byteRate = 1_000_000

	c.decreaseBitRate()

	if c.byteRate != 1_000_000 {
		t.Fatalf("byteRate = %d, want unchanged 1000000 inside warm-up", c.byteRate)
	}
}

func TestDecreaseBitRate_MeasuredRate(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	clock.advance(int64(4 * time.Second)) // clear of the 3s warm-up window

	c.byteRate = 1_500_000
	c.eval = qualityEval{}
	c.bitRate.changeStartTime = clock.nowNano - int64(2*time.Second)
	c.bitRate.lastFrameTime = clock.nowNano
	c.bitRate.numEncFrames = 10
	c.bitRate.sumEncSize = 2_000_000 // 1,000,000 B/s measured over 2s, 200,000 B avg frame

	c.decreaseBitRate()

	want := uint64(800_000) // 1,000,000 measured - 200,000 avg frame size
	if c.byteRate != want {
		t.Fatalf("byteRate = %d, want %d", c.byteRate, want)
	}
	if !c.eval.active || c.eval.kind != evalDowngrade {
		t.Fatalf("expected an active DOWNGRADE eval, got %+v", c.eval)
	}
}

func TestDecreaseBitRate_RespectsFloor(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	clock.advance(int64(4 * time.Second))
	c.byteRate = 110_000

	for i := 0; i < 20; i++ {
		c.bitRate.changeStartTime = clock.nowNano - int64(time.Second)
		c.bitRate.lastFrameTime = clock.nowNano
		c.bitRate.numEncFrames = 10
		c.bitRate.sumEncSize = 50_000
		c.decreaseBitRate()
	}

	if c.byteRate < c.minRate {
		t.Fatalf("byteRate %d fell below floor %d", c.byteRate, c.minRate)
	}
}

func TestIncreaseBitRate_RespectsCeiling(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	c.byteRate = c.maxRate - 10

	for i := 0; i < 20; i++ {
		c.bitRate.changeStartTime = clock.nowNano
		c.bitRate.lastFrameTime = clock.nowNano + int64(time.Second)
		c.bitRate.numEncFrames = 10
		c.bitRate.sumEncSize = 5_000_000
		c.increaseBitRate()
	}

	if c.byteRate > c.maxRate {
		t.Fatalf("byteRate %d exceeded ceiling %d", c.byteRate, c.maxRate)
	}
}

func TestIncreaseBitRate_MeasuredRate(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	c.byteRate = 1_000_000
	c.eval = qualityEval{}
	c.bitRate.changeStartTime = 0
	c.bitRate.lastFrameTime = int64(2 * time.Second)
	c.bitRate.numEncFrames = 10
	c.bitRate.sumEncSize = 2_000_000 // 1,000,000 B/s measured over 2s, 200,000 B avg frame

	c.increaseBitRate()

	want := uint64(1_200_000) // min(measured, byteRate) + avg frame size
	if c.byteRate != want {
		t.Fatalf("byteRate = %d, want %d", c.byteRate, want)
	}
	if !c.eval.active || c.eval.kind != evalUpgrade {
		t.Fatalf("expected an active UPGRADE eval, got %+v", c.eval)
	}
}

// TestIncreaseBitRate_NoopWithoutEnoughSamples covers the "return immediately"
// branch: too few encoded frames since the last reset leaves byteRate and the
// evaluation state completely untouched.
func TestIncreaseBitRate_NoopWithoutEnoughSamples(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	c.byteRate = 1_000_000
	c.eval = qualityEval{}
	c.bitRate.numEncFrames = 1 // below bitRateEvalMinFrames and below fps

	c.increaseBitRate()

	if c.byteRate != 1_000_000 {
		t.Fatalf("expected byteRate unchanged, got %d", c.byteRate)
	}
	if c.eval.active {
		t.Fatal("expected no evaluation to start without enough samples")
	}
}

func TestAdmit_AdmitsFirstFrameThenPacesByInterval(t *testing.T) {
	clock := &fakeClock{nowNano: 0}
	c := newTestController(clock)
	c.adjustedFPS = 10 // minimum spacing = 100ms

	if !c.admit(0) {
		t.Fatal("expected the first frame to be admitted when no frame has been stamped yet")
	}
	c.bitRate.stampFrame(0, 0)

	if c.admit(50_000_000) {
		t.Fatal("expected a frame 50ms after the last stamp to be paced out")
	}
	if !c.admit(100_000_000) {
		t.Fatal("expected a frame at exactly the pacing interval to be admitted")
	}
}

func TestGetStats_ReflectsOperatingPoint(t *testing.T) {
	clock := &fakeClock{nowNano: 1}
	c := newTestController(clock)
	stats := c.GetStats()

	if stats.ByteRate != c.byteRate*8 {
		t.Fatalf("Stats.ByteRate = %d, want %d", stats.ByteRate, c.byteRate*8)
	}
	if stats.QualityID != medianQualityID {
		t.Fatalf("Stats.QualityID = %d, want %d", stats.QualityID, medianQualityID)
	}
	if !stats.InEval {
		t.Fatal("expected Stats.InEval true right after construction")
	}
}
