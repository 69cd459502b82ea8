package mjpeg

// bitRateInfo is the rolling accounting of encoded frames since the last
// rate-change event.
type bitRateInfo struct {
	changeStartTime   int64 // monotonic ns, 0 means "not yet stamped"
	changeStartMMTime uint32

	// changeStartMMTime == 0 is treated as "never set" by handleNegative. A
	// genuine mm_time of 0 from the host is indistinguishable from this; we
	// document the ambiguity here rather than try to disambiguate it.

	lastFrameTime int64
	stamped       bool // a frame has been stamped since the last reset
	wasUpgraded   bool

	numEncFrames uint64
	sumEncSize   uint64
}

func (b *bitRateInfo) reset(wasUpgraded bool) {
	*b = bitRateInfo{wasUpgraded: wasUpgraded}
}

// stampFrame marks the start of one frame's encode attempt: the first call
// after a reset latches changeStartTime/changeStartMMTime, and every call
// refreshes lastFrameTime, which the admission gate paces against.
func (b *bitRateInfo) stampFrame(now int64, frameMMTime uint32) {
	if b.changeStartTime == 0 {
		b.changeStartTime = now
		b.changeStartMMTime = frameMMTime
	}
	b.lastFrameTime = now
	b.stamped = true
}

// accumulate folds one successfully encoded frame's size into the rolling
// sum once compression has actually produced output.
func (b *bitRateInfo) accumulate(size int) {
	b.numEncFrames++
	b.sumEncSize += uint64(size)
}

// hasEnoughSamples reports whether enough frames have been encoded since the
// last reset for a measured-duration byte rate to be trusted over the
// current belief.
func (b *bitRateInfo) hasEnoughSamples(fps int) bool {
	return b.numEncFrames > bitRateEvalMinFrames || b.numEncFrames > uint64(fps)
}

// measuredByteRate divides the accumulated encoded bytes by the wall-clock
// duration they were encoded over. Callers check hasEnoughSamples first; a
// zero or negative duration returns sumEncSize unchanged.
func (b *bitRateInfo) measuredByteRate() uint64 {
	durationSec := float64(b.lastFrameTime-b.changeStartTime) / 1e9
	if durationSec <= 0 {
		return b.sumEncSize
	}
	return uint64(float64(b.sumEncSize) / durationSec)
}

// avgFrameSize is the mean encoded frame size over the current window.
func (b *bitRateInfo) avgFrameSize() uint64 {
	if b.numEncFrames == 0 {
		return 0
	}
	return b.sumEncSize / b.numEncFrames
}
