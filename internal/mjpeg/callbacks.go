package mjpeg

// Host is the set of callbacks the rate controller consumes from its
// embedding application. Host hooks are plain
// function values stored by the config struct, not an interface the host
// must implement in full — a host that only cares about one callback
// doesn't have to stub the rest.
type Host struct {
	// SourceFPS reports the capture-side frame rate the encoder is fed at.
	// Defaults to MaxFPS if nil.
	SourceFPS func() uint32

	// RoundTripMS reports the current measured client round-trip time in
	// milliseconds. Defaults to 0 if nil (latency_ms = rtt/2 = 0).
	RoundTripMS func() uint32

	// UpdateClientPlaybackDelay is called with a freshly recommended
	// client-side jitter-buffer delay in milliseconds. Optional.
	UpdateClientPlaybackDelay func(delayMS uint32)
}

func (c *RateControl) hostSourceFPS() uint32 {
	if c.host.SourceFPS != nil {
		if v := c.host.SourceFPS(); v > 0 {
			return v
		}
	}
	return MaxFPS
}

func (c *RateControl) hostLatencyMS() uint32 {
	if c.host.RoundTripMS == nil {
		return 0
	}
	return c.host.RoundTripMS() / 2
}

func (c *RateControl) notifyPlaybackDelay(delayMS uint32) {
	if c.host.UpdateClientPlaybackDelay != nil {
		c.host.UpdateClientPlaybackDelay(delayMS)
	}
}
