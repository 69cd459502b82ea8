package mjpeg

// clientState is the running playback-health counters reported by the
// client, reset whenever a downgrade occurs.
type clientState struct {
	maxVideoLatency int32  // signed ms
	maxAudioLatency uint32 // ms
}

func (s *clientState) reset() {
	s.maxVideoLatency = 0
	s.maxAudioLatency = 0
}

// minDelayMS is the recommended client playback (jitter-buffer) delay for a
// frame of the given encoded size at the current byte rate, plus the
// current host round-trip latency.
func (c *RateControl) minDelayMS(frameEncSize int) int {
	return minDelay(frameEncSize, c.byteRate, int(c.hostLatencyMS()))
}

func minDelay(frameEncSize int, byteRate uint64, latencyMS int) int {
	if frameEncSize == 0 || byteRate == 0 {
		return latencyMS
	}
	oneFrameMS := frameEncSize * 1000 / int(byteRate)
	total := 2*oneFrameMS + latencyMS
	if total > maxClientPlaybackDelayMS {
		return maxClientPlaybackDelayMS
	}
	return total
}

// ClientStreamReport is the periodic playback report the client sends back
// to the host.
type ClientStreamReport struct {
	NumFrames     uint32
	NumDrops      uint32
	StartMMTime   uint32
	EndMMTime     uint32
	EndFrameDelay int32 // signed ms; negative means the frame arrived late
	AudioDelay    uint32
}

// ClientStreamReport folds one playback report into the video/audio drift
// heuristics and decides whether it confirms a negative or positive
// signal for the bit-rate controller.
func (c *RateControl) ClientStreamReport(r ClientStreamReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eval.active && c.eval.kind == evalDowngrade && c.eval.reason == reasonRateChange {
		return // already converging
	}

	avgEncSize := c.averageRecentEncSize()
	latencyMS := int(c.hostLatencyMS())
	minPB := minDelay(avgEncSize, c.byteRate, latencyMS)

	atCeiling := c.qualityID == maxQualityID &&
		uint32(c.fps) >= minUint32(c.hostSourceFPS(), MaxFPS) &&
		r.EndFrameDelay >= 0

	isVideoDelaySmall := false
	if minPB > int(r.EndFrameDelay) && !atCeiling {
		isVideoDelaySmall = true
		c.notifyPlaybackDelay(uint32(minPB))
	}

	// Audio-vs-video drift.
	if r.EndFrameDelay > 0 &&
		float64(r.AudioDelay) < playbackLatencyDecreaseFactor*float64(c.client.maxAudioLatency) &&
		float64(r.EndFrameDelay) > videoVsAudioLatencyFactor*float64(r.AudioDelay) {
		c.handleNegative(r.EndMMTime)
		return
	}

	if r.EndFrameDelay < videoDelayThresholdMS {
		c.handleNegative(r.EndMMTime)
		return
	}

	if r.EndFrameDelay > c.client.maxVideoLatency {
		c.client.maxVideoLatency = r.EndFrameDelay
	}
	if r.AudioDelay > c.client.maxAudioLatency {
		c.client.maxAudioLatency = r.AudioDelay
	}

	medium := 0.5 * float64(c.client.maxVideoLatency)
	major := 0.25 * float64(c.client.maxVideoLatency)

	switch {
	case (float64(r.EndFrameDelay) < medium && isVideoDelaySmall) || float64(r.EndFrameDelay) < major:
		c.handleNegative(r.EndMMTime)
	case r.NumDrops == 0:
		c.handlePositive(r.StartMMTime)
	}
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// handleNegative decreases the bit rate unless the report is already covered:
// the last rate change was not an upgrade and was either never stamped or
// stamped after this report's end time.
func (c *RateControl) handleNegative(reportEndMMTime uint32) {
	alreadyHandled := (c.bitRate.changeStartMMTime == 0 || c.bitRate.changeStartMMTime > reportEndMMTime) &&
		!c.bitRate.wasUpgraded
	if alreadyHandled {
		return
	}
	c.decreaseBitRate()
}

// handlePositive increases the bit rate once enough time has passed since
// the last rate change to trust that the positive signal is sustained
// rather than a momentary blip.
func (c *RateControl) handlePositive(reportStartMMTime uint32) {
	timeout := clientPositiveReportTimeout
	if (c.fps > improveQualityFPSStrictTH || uint32(c.fps) >= c.hostSourceFPS()) && c.qualityID > medianQualityID {
		timeout = clientPositiveReportStrictTimeout
	}

	if c.bitRate.changeStartMMTime == 0 {
		return
	}
	elapsed := int64(reportStartMMTime) - int64(c.bitRate.changeStartMMTime)
	if elapsed < timeout.Milliseconds() {
		return
	}
	c.increaseBitRate()
}
