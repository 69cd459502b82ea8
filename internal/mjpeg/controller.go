// Package mjpeg implements the adaptive bit-rate, frame-rate and JPEG
// quality controller for a remote-desktop style MJPEG video stream.
//
// The controller owns no socket and no codec; it only decides, frame by
// frame, whether to encode or drop, and at what JPEG quality and target
// frame rate, given the byte-rate it currently believes the transport can
// sustain and the feedback the client and the server-side encode path
// report back. Grounded on adaptive.go's AdaptiveBitrate: a single
// mutex-guarded struct driven by small pure step functions, with startup and
// every bit-rate decrease or increase logged through logging.L at Info
// level. Quality commits are not logged.
package mjpeg

import (
	"log/slog"
	"sync"

	"github.com/lanternops/mjpegrc/internal/logging"
)

// Config bounds and seeds a RateControl.
type Config struct {
	StartingBitRate uint64 // bits per second
	MinByteRate     uint64 // bytes per second, floor
	MaxByteRate     uint64 // bytes per second, ceiling
	Clock           Clock  // optional, defaults to a real monotonic clock
	Host            Host
}

// RateControl is the MIMO controller jointly holding the current quality
// id, target fps, byte rate and adjusted (pacing) fps, plus the client and
// server health counters that drive transitions between them. All exported
// methods are safe for concurrent use; callers typically invoke them from
// one capture goroutine and one transport-report goroutine.
type RateControl struct {
	mu sync.Mutex

	log *slog.Logger

	clock   Clock
	minRate uint64
	maxRate uint64

	byteRate uint64

	qualityID int
	fps       int

	adjustedFPS          float64
	adjustedFPSStartTime int64
	adjustedFPSNumFrames int

	baseEncSize        int
	lastEncSize        int
	sumRecentEncSize   int
	numRecentEncFrames int

	warmupStartTime int64

	eval    qualityEval
	bitRate bitRateInfo
	client  clientState
	server  serverState
	host    Host
}

// NewRateControl builds a RateControl seeded from cfg: the starting bit
// rate is converted to a byte rate, and resetQuality seeds quality id at the
// median and fps at constructionFPS exactly as it does for any other
// evaluation commit, so the ceiling clamp (maxQualityID/maxQualityFPS) is
// already in place before the initial SET evaluation begins immediately,
// letting the first frames probe for a stable operating point instead of
// trusting the seed blindly.
func NewRateControl(cfg Config) *RateControl {
	clock := cfg.Clock
	if clock == nil {
		clock = NewRealClock()
	}

	c := &RateControl{
		log:     logging.L("mjpeg.ratecontrol"),
		clock:   clock,
		minRate: cfg.MinByteRate,
		maxRate: cfg.MaxByteRate,
		host:    cfg.Host,
	}
	c.byteRate = c.clampByteRate(cfg.StartingBitRate / 8)
	c.warmupStartTime = c.clock.NowNano()
	if c.warmupStartTime == 0 {
		c.warmupStartTime = 1 // 0 means "warm-up over"; keep the window open at a clock origin of 0
	}
	c.bitRate.reset(false)
	c.resetQuality(medianQualityID, constructionFPS, 0)
	c.setEval(reasonRateChange)

	c.log.Info("rate control started",
		"byte_rate", c.byteRate, "quality_id", c.qualityID, "fps", c.fps)

	return c
}

func (c *RateControl) clampByteRate(rate uint64) uint64 {
	if c.minRate > 0 && rate < c.minRate {
		return c.minRate
	}
	if c.maxRate > 0 && rate > c.maxRate {
		return c.maxRate
	}
	return rate
}

func (c *RateControl) averageRecentEncSize() int {
	if c.numRecentEncFrames == 0 {
		return c.baseEncSize
	}
	return c.sumRecentEncSize / c.numRecentEncFrames
}

// withinWarmup reports whether the controller is still inside its
// post-start grace period, during which a confirmed negative signal is not
// allowed to cut the byte rate.
func (c *RateControl) withinWarmup() bool {
	return c.warmupStartTime != 0 && c.clock.NowNano()-c.warmupStartTime < warmupTime.Nanoseconds()
}

// adjustFPS is the periodic pacing-smoothing pass, run once per frame
// before the admission check. Roughly every adjustFPSTimeout (and never more
// than once per nominal frame interval), it compares the frame rate actually
// achieved against the target fps and nudges adjustedFPS toward it, keeping
// it within [fps, 2*fps] so a quality transition's fps_ratio carry-over in
// resetQuality never drifts outside that band for long.
func (c *RateControl) adjustFPS(now int64) {
	if c.adjustedFPSStartTime == 0 {
		c.adjustedFPSStartTime = now
	}
	elapsedMS := float64(now-c.adjustedFPSStartTime) / 1e6
	if c.eval.active || elapsedMS <= float64(adjustFPSTimeout.Milliseconds()) || elapsedMS <= 1000/c.adjustedFPS {
		return
	}

	avgFPS := float64(c.adjustedFPSNumFrames) * 1000 / elapsedMS
	fps := float64(c.fps)

	switch {
	case avgFPS+0.5 < fps && float64(c.hostSourceFPS()) > avgFPS:
		newAdj := c.adjustedFPS * 2
		if avgFPS > 0 {
			newAdj = c.adjustedFPS / (avgFPS / fps)
		}
		if ceiling := 2 * fps; newAdj > ceiling {
			newAdj = ceiling
		}
		c.adjustedFPS = newAdj
	case fps+0.5 < avgFPS:
		newAdj := c.adjustedFPS / (avgFPS / fps)
		if newAdj < fps {
			newAdj = fps
		}
		c.adjustedFPS = newAdj
	}

	c.adjustedFPSStartTime = now
	c.adjustedFPSNumFrames = 0
}

// admit is the per-frame admission gate: a frame submitted less than
// 1/adjustedFPS after the last stamped frame is paced out and dropped. With
// no frame stamped since the last bit-rate reset, the frame is admitted.
func (c *RateControl) admit(now int64) bool {
	if c.adjustedFPS <= 0 || !c.bitRate.stamped {
		return true
	}
	interval := now - c.bitRate.lastFrameTime
	return interval >= fpsToIntervalNanos(c.adjustedFPS)
}

// adjustParamsToBitRate runs once per frame, before compression, against the
// previous frame's encoded size: while a quality evaluation is active it
// just feeds the sample to the evaluator; otherwise, once the recent-size
// window has enough samples, it compares the fps implied by the recent
// average size against the current target and opens a SIZE_CHANGE
// evaluation when the drift crosses a threshold. When the previous frame
// has a size and no evaluation is entered or continued, it falls through to
// the server-drop monitor,
// matching every non-evaluating frame getting a chance to react to
// server-side drops.
func (c *RateControl) adjustParamsToBitRate() {
	if c.lastEncSize == 0 {
		return
	}

	if c.eval.active {
		c.recordQualitySample(c.lastEncSize)
		return
	}

	if c.numRecentEncFrames < avgSizeWindow && c.numRecentEncFrames < c.fps {
		c.serverDropMonitor(c.hostSourceFPS())
		return
	}

	newAvgEncSize := c.sumRecentEncSize / c.numRecentEncFrames
	newFPS := fpsFromSize(c.byteRate, newAvgEncSize)
	srcFPS := float64(c.hostSourceFPS())

	switch {
	case newFPS > float64(c.fps) && (float64(c.fps) < srcFPS || c.qualityID < maxQualityID):
		c.setUpgrade(reasonSizeChange, c.qualityID, float64(c.fps))
	case newFPS < float64(c.fps) && newFPS < srcFPS:
		c.setDowngrade(reasonSizeChange, c.qualityID, float64(c.fps))
	}

	if c.eval.active {
		c.recordQualitySample(newAvgEncSize)
		return
	}
	c.serverDropMonitor(c.hostSourceFPS())
}

// decreaseBitRate cuts the believed byte rate on a confirmed negative
// signal. It cancels any in-flight evaluation first, is suppressed
// entirely during warm-up, and otherwise prefers a byte rate measured from
// the actual encoded-bytes-per-second since the last rate change once enough
// frames have been encoded to trust it, falling back to the current belief
// divided across fps when the window is too thin.
func (c *RateControl) decreaseBitRate() {
	c.evalStop()
	c.client.reset()

	if c.withinWarmup() {
		return
	}
	c.warmupStartTime = 0

	var measuredByteRate, decreaseSize uint64
	if c.bitRate.hasEnoughSamples(c.fps) {
		measuredByteRate = c.bitRate.measuredByteRate()
		decreaseSize = c.bitRate.avgFrameSize()
	} else {
		measuredByteRate = c.byteRate
		decreaseSize = c.byteRate / uint64(c.fps)
	}

	if measuredByteRate > c.byteRate {
		measuredByteRate = c.byteRate
	}
	if decreaseSize >= measuredByteRate {
		decreaseSize = measuredByteRate / 2
	}

	c.byteRate = c.clampByteRate(measuredByteRate - decreaseSize)
	c.bitRate.reset(false)
	c.setDowngrade(reasonRateChange, c.qualityID, float64(c.fps))

	c.log.Info("bit rate decreased", "byte_rate", c.byteRate, "quality_id", c.qualityID, "fps", c.fps)
}

// increaseBitRate raises the believed byte rate on a confirmed positive
// signal. It requires enough encoded samples to trust a measurement at all
// (otherwise it is a total no-op, not even entering an evaluation); when the
// measured rate plus the average frame size hasn't yet caught up to the
// current belief it re-evaluates without actually raising byteRate.
func (c *RateControl) increaseBitRate() {
	if !c.bitRate.hasEnoughSamples(c.fps) {
		return
	}

	measuredByteRate := c.bitRate.measuredByteRate()
	increaseSize := c.bitRate.avgFrameSize()

	c.evalStop()

	if measuredByteRate+increaseSize >= c.byteRate {
		if measuredByteRate > c.byteRate {
			measuredByteRate = c.byteRate
		}
		c.byteRate = c.clampByteRate(measuredByteRate + increaseSize)
	}

	c.bitRate.reset(true)
	c.setUpgrade(reasonRateChange, c.qualityID, float64(c.fps))

	c.log.Info("bit rate increased", "byte_rate", c.byteRate, "quality_id", c.qualityID, "fps", c.fps)
}

// GetBitRate returns the current byte-rate belief, in bits per second.
func (c *RateControl) GetBitRate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byteRate * 8
}

// Stats is a point-in-time snapshot of the controller's operating point,
// grounded on stream_metrics.go's Snapshot() pattern: a plain value copy
// taken under lock, safe to read without further synchronization.
type Stats struct {
	ByteRate      uint64
	QualityID     int
	FPS           int
	AdjustedFPS   float64
	FramesDone    uint64
	FramesDropped uint64
	InEval        bool
}

// GetStats reports the controller's current operating point.
func (c *RateControl) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		ByteRate:      c.byteRate * 8,
		QualityID:     c.qualityID,
		FPS:           c.fps,
		AdjustedFPS:   c.adjustedFPS,
		FramesDone:    c.server.numFramesEncoded,
		FramesDropped: c.server.numFramesDropped,
		InEval:        c.eval.active,
	}
}
