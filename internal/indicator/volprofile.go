package indicator

import "marketpulse/internal/model"

// Volume-profile bucket labels for the price zone the market trades in.
const (
	ProfileHighVolumeNode = "HIGH_VOLUME_NODE"
	ProfileAvgVolumeNode  = "AVERAGE_VOLUME_NODE"
	ProfileLowVolumeNode  = "LOW_VOLUME_NODE"
)

const profileBuckets = 12

// ProfileBucket histograms the candle window's volume across price buckets
// and labels the bucket containing price. Returns ok=false when the window
// is too thin to say anything.
func ProfileBucket(window []model.Candle, price float64) (string, bool) {
	if len(window) < profileBuckets {
		return "", false
	}

	lo, hi := model.Rupees(window[0].Low), model.Rupees(window[0].High)
	for _, c := range window[1:] {
		if l := model.Rupees(c.Low); l < lo {
			lo = l
		}
		if h := model.Rupees(c.High); h > hi {
			hi = h
		}
	}
	if hi <= lo {
		return "", false
	}

	var vols [profileBuckets]float64
	width := (hi - lo) / profileBuckets
	var total float64
	for _, c := range window {
		typical := (model.Rupees(c.High) + model.Rupees(c.Low) + model.Rupees(c.Close)) / 3
		idx := bucketIdx(typical, lo, width)
		vols[idx] += float64(c.Volume)
		total += float64(c.Volume)
	}
	if total == 0 {
		return "", false
	}

	mean := total / profileBuckets
	v := vols[bucketIdx(price, lo, width)]
	switch {
	case v >= mean*1.5:
		return ProfileHighVolumeNode, true
	case v <= mean*0.5:
		return ProfileLowVolumeNode, true
	default:
		return ProfileAvgVolumeNode, true
	}
}

func bucketIdx(price, lo, width float64) int {
	idx := int((price - lo) / width)
	if idx < 0 {
		return 0
	}
	if idx >= profileBuckets {
		return profileBuckets - 1
	}
	return idx
}
