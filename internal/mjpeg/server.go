package mjpeg

// serverState tracks the server's own encode/drop counters since the last
// evaluation window or rate-change reset.
type serverState struct {
	numFramesEncoded uint64
	numFramesDropped uint64
}

func (s *serverState) reset() {
	s.numFramesEncoded = 0
	s.numFramesDropped = 0
}

// serverDropMonitor is a sub-policy that forces a downgrade when the server
// itself has been dropping frames it chose not to encode (not to be
// confused with the client-side admission-gate drop). It is self-gating: it
// only acts once enough frames have been encoded in the current window,
// mirroring adaptive.go's "only act once enough samples accumulated, then
// reset the window" shape (there: EWMA sample count; here: the count of
// encoded frames, which must reach min(fps, source fps)). Called every frame via
// adjustParamsToBitRate's non-evaluating branch, and directly whenever the
// host reports a server-side drop.
func (c *RateControl) serverDropMonitor(srcFPS uint32) {
	evalFPS := c.fps
	if srcFPS > 0 && uint32(evalFPS) > srcFPS {
		evalFPS = int(srcFPS)
	}

	if c.server.numFramesEncoded < uint64(evalFPS) {
		return
	}

	total := c.server.numFramesEncoded + c.server.numFramesDropped
	if total > 0 {
		ratio := float64(c.server.numFramesDropped) / float64(total)
		if ratio > serverDowngradeDropFactor {
			c.decreaseBitRate()
		}
	}

	c.server.reset()
}

// NotifyServerFrameDrop reports that the server itself chose not to encode a
// captured frame (starved encode path), distinct from the admission-gate
// DROP the rate controller issues to callers.
func (c *RateControl) NotifyServerFrameDrop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.server.numFramesDropped++
	c.serverDropMonitor(c.hostSourceFPS())
}
