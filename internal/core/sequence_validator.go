package core

// FeedObservation classifies a price feed sequence against the last one
// seen for that asset.
type FeedObservation int32

const (
	FeedSeqNormal FeedObservation = iota
	FeedSeqStale                  // at or behind the last applied sequence
	FeedSeqGap                    // ahead by more than one
)

// FeedSequenceValidator tracks per-asset sequences from upstream price
// sources. Price streams are lossy by nature: stale observations are
// ignored and gaps are counted but accepted.
// Not thread-safe — only touched from the single-threaded engine.
type FeedSequenceValidator struct {
	nextExpected map[string]int64 // asset symbol -> next expected feed sequence
	gaps         map[string]int64
	stale        map[string]int64
}

func NewFeedSequenceValidator() *FeedSequenceValidator {
	return &FeedSequenceValidator{
		nextExpected: make(map[string]int64),
		gaps:         make(map[string]int64),
		stale:        make(map[string]int64),
	}
}

// Observe records a feed sequence and classifies it. Normal and gapped
// observations both advance the expectation; stale ones leave it alone.
func (fv *FeedSequenceValidator) Observe(asset string, feedSequence int64) FeedObservation {
	expected := fv.nextExpected[asset]

	if feedSequence < expected {
		fv.stale[asset]++
		return FeedSeqStale
	}

	observation := FeedSeqNormal
	if expected != 0 && feedSequence > expected {
		fv.gaps[asset]++
		observation = FeedSeqGap
	}

	fv.nextExpected[asset] = feedSequence + 1
	return observation
}

// Gaps returns the gap count for one asset.
func (fv *FeedSequenceValidator) Gaps(asset string) int64 {
	return fv.gaps[asset]
}

// Stale returns the stale count for one asset.
func (fv *FeedSequenceValidator) Stale(asset string) int64 {
	return fv.stale[asset]
}

// Snapshot returns the per-asset expectations for persistence.
func (fv *FeedSequenceValidator) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(fv.nextExpected))
	for asset, seq := range fv.nextExpected {
		out[asset] = seq
	}
	return out
}

// Restore replaces the per-asset expectations from a snapshot.
func (fv *FeedSequenceValidator) Restore(expectations map[string]int64) {
	fv.nextExpected = make(map[string]int64, len(expectations))
	for asset, seq := range expectations {
		fv.nextExpected[asset] = seq
	}
}
