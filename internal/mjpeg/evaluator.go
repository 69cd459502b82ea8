package mjpeg

// evalKind is the quality-evaluation's entry reason: a fresh SET at
// construction, an UPGRADE probing toward higher quality, or a DOWNGRADE
// probing toward lower quality.
type evalKind int

const (
	evalNone evalKind = iota
	evalSet
	evalUpgrade
	evalDowngrade
)

// evalReason distinguishes a rate-driven evaluation (triggered by a
// confirmed increase/decrease signal) from a size-driven one (triggered by
// the per-frame Adjust-to-bit-rate pass noticing the implied fps has
// drifted). Kept as its own sum type so an UPGRADE/DOWNGRADE clamp can
// never be paired with an undefined reason.
type evalReason int

const (
	reasonSizeChange evalReason = iota
	reasonRateChange
)

// qualityEval is the probing record a RateControl walks while an
// evaluation is active.
type qualityEval struct {
	active bool
	kind   evalKind
	reason evalReason

	encodedSizeByQuality [7]int

	minQualityID  int
	minQualityFPS float64
	maxQualityID  int
	maxQualityFPS float64

	maxSampledFPS          float64
	maxSampledFPSQualityID int
}

// fpsFromSize converts an encoded frame size into an achievable frame rate
// at the current byte-rate belief; division by zero is avoided by
// returning MaxFPS when size is unknown (0).
func fpsFromSize(byteRate uint64, size int) float64 {
	if size == 0 {
		return MaxFPS
	}
	return float64(byteRate) / float64(size)
}

func clampFPS(f float64) int {
	i := int(f) // truncate toward zero
	if i < MinFPS {
		return MinFPS
	}
	if i > MaxFPS {
		return MaxFPS
	}
	return i
}

// setUpgrade marks an UPGRADE evaluation in flight with a lower clamp.
func (c *RateControl) setUpgrade(reason evalReason, minID int, minFPS float64) {
	e := &c.eval
	e.active = true
	e.kind = evalUpgrade
	e.reason = reason
	e.minQualityID = minID
	e.minQualityFPS = minFPS
}

// setDowngrade marks a DOWNGRADE evaluation in flight with an upper clamp.
func (c *RateControl) setDowngrade(reason evalReason, maxID int, maxFPS float64) {
	e := &c.eval
	e.active = true
	e.kind = evalDowngrade
	e.reason = reason
	e.maxQualityID = maxID
	e.maxQualityFPS = maxFPS
}

// setEval marks a generic SET evaluation, used only once at construction.
func (c *RateControl) setEval(reason evalReason) {
	e := &c.eval
	e.active = true
	e.kind = evalSet
	e.reason = reason
}

// recordQualitySample stores an encoded (or recent-average) frame size for
// the current quality id and advances the probe one step.
func (c *RateControl) recordQualitySample(size int) {
	c.eval.encodedSizeByQuality[c.qualityID] = size
	c.evalStep()
}

// evalStep is the probing state machine a quality evaluation walks one
// step at a time, one step per sampled frame. It assumes the
// compression-ratio curve is monotonic in quality; the max-sampled-fps
// bookkeeping below exists to recover from a monotonicity violation by
// committing to the best point actually observed instead of trusting the
// walk blindly.
func (c *RateControl) evalStep() {
	e := &c.eval

	encSize := e.encodedSizeByQuality[c.qualityID]
	if encSize == 0 {
		return
	}

	fps := fpsFromSize(c.byteRate, encSize)
	srcFPS := float64(c.hostSourceFPS())

	if fps > e.maxSampledFPS ||
		((fps == e.maxSampledFPS || fps >= srcFPS) && c.qualityID > e.maxSampledFPSQualityID) {
		e.maxSampledFPS = fps
		e.maxSampledFPSQualityID = c.qualityID
	}

	switch {
	case c.qualityID > medianQualityID && fps < improveQualityFPSStrictTH && fps < srcFPS:
		// High-quality regime: prefer FPS over quality.
		if e.encodedSizeByQuality[c.qualityID-1] != 0 {
			c.qualityID--
			c.evalCommit()
			return
		}
		c.qualityID--

	case (fps > improveQualityFPSPermissiveTH && fps >= 0.66*e.minQualityFPS) || fps >= srcFPS:
		// Exploration-upwards regime.
		if c.qualityID == maxQualityID || c.qualityID >= e.maxQualityID || e.encodedSizeByQuality[c.qualityID+1] != 0 {
			c.evalCommit()
			return
		}
		if c.qualityID == medianQualityID && fps < improveQualityFPSStrictTH && fps < srcFPS {
			// Protect against over-reach from the median.
			c.evalCommit()
			return
		}
		c.qualityID++

	default:
		// Too-slow regime: try to lower quality.
		if c.qualityID == minQualityID || c.qualityID <= e.minQualityID {
			c.evalCommit()
			return
		}
		if e.encodedSizeByQuality[c.qualityID-1] != 0 {
			c.qualityID--
			c.evalCommit()
			return
		}
		c.qualityID--
	}
}

// evalCommit finalizes the probe into a (quality, fps) pair.
func (c *RateControl) evalCommit() {
	e := &c.eval

	finalQualityID := c.qualityID
	if e.maxSampledFPSQualityID > finalQualityID {
		finalQualityID = e.maxSampledFPSQualityID
	}
	finalEncSize := e.encodedSizeByQuality[finalQualityID]
	finalFPS := fpsFromSize(c.byteRate, finalEncSize)

	if finalQualityID == e.minQualityID && finalFPS < e.minQualityFPS {
		finalFPS = e.minQualityFPS
	}
	if finalQualityID == e.maxQualityID && finalFPS > e.maxQualityFPS {
		finalFPS = e.maxQualityFPS
	}

	c.resetQuality(finalQualityID, finalFPS, finalEncSize)

	c.sumRecentEncSize = finalEncSize
	c.numRecentEncFrames = 1

	c.notifyPlaybackDelay(uint32(c.minDelayMS(finalEncSize)))
}

// resetQuality commits a (quality, fps) pair as the new steady-state
// operating point, carrying the pacing ratio across the transition and
// clearing the per-evaluation bookkeeping.
func (c *RateControl) resetQuality(newQualityID int, newFPS float64, newFrameEncSize int) {
	e := &c.eval
	oldQualityID := c.qualityID
	reason := e.reason

	e.active = false // 1

	if newQualityID != oldQualityID { // 2
		c.lastEncSize = 0
	}

	if reason == reasonRateChange { // 3
		c.server.reset()
	}

	c.qualityID = newQualityID // 4
	*e = qualityEval{}
	e.maxQualityID = maxQualityID
	e.maxQualityFPS = MaxFPS

	fpsRatio := 1.5 // 5
	if c.adjustedFPS > 0 {
		fpsRatio = c.adjustedFPS / float64(c.fps)
	}

	c.fps = clampFPS(newFPS) // 6
	c.adjustedFPS = float64(c.fps) * fpsRatio

	c.adjustedFPSStartTime = 0 // 7
	c.adjustedFPSNumFrames = 0

	c.baseEncSize = newFrameEncSize // 8
	c.sumRecentEncSize = 0
	c.numRecentEncFrames = 0
}

// evalStop cancels any in-flight evaluation by committing to its clamp.
func (c *RateControl) evalStop() {
	e := &c.eval
	if !e.active {
		return
	}

	switch e.kind {
	case evalUpgrade:
		c.resetQuality(e.minQualityID, e.minQualityFPS, 0)
	case evalDowngrade:
		c.resetQuality(e.maxQualityID, e.maxQualityFPS, 0)
	case evalSet:
		c.resetQuality(medianQualityID, constructionFPS, 0)
	}
}
