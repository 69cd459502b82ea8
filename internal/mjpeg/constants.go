package mjpeg

import "time"

// Clamp bounds for the controller's target frame rate.
const (
	MinFPS = 1
	MaxFPS = 25
)

const (
	// constructionFPS seeds the target fps at construction time, before the
	// initial SET evaluation has sampled anything.
	constructionFPS = 5

	// avgSizeWindow bounds the rolling recent-encoded-size window used by
	// Adjust-to-bit-rate once a quality/fps pair is settled.
	avgSizeWindow = 3

	// bitRateEvalMinFrames is the minimum sample count the bit-rate
	// estimator wants before trusting a measured duration/size average.
	bitRateEvalMinFrames = 3

	// lowFPSRateTH is defined by the original encoder but never referenced
	// by its controller logic either; retained as documentation only, not
	// wired into any branch.
	lowFPSRateTH = 3

	improveQualityFPSStrictTH     = 10
	improveQualityFPSPermissiveTH = 5

	serverDowngradeDropFactor = 0.10

	clientPositiveReportTimeout       = 2000 * time.Millisecond
	clientPositiveReportStrictTimeout = 3000 * time.Millisecond

	adjustFPSTimeout = 500 * time.Millisecond

	maxClientPlaybackDelayMS = 5000

	warmupTime = 3000 * time.Millisecond

	videoDelayThresholdMS = -15

	playbackLatencyDecreaseFactor = 0.5
	videoVsAudioLatencyFactor     = 1.25
)
