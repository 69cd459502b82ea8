package mjpeg

// fakeClock is a manually advanced Clock for deterministic tests, grounded
// on adaptive_test.go's pattern of a test-only stand-in for a collaborator
// that would otherwise make tests timing-dependent.
type fakeClock struct {
	nowNano int64
}

func (f *fakeClock) NowNano() int64 { return f.nowNano }

func (f *fakeClock) advance(nanos int64) { f.nowNano += nanos }
