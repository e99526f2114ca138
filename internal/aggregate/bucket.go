package aggregate

import (
	"sort"
	"time"

	"codeberg.org/mutker/hashtop/internal/model"
)

// ShareBucket holds share totals across all GPUs for one timestamp.
type ShareBucket struct {
	Time    time.Time `json:"time"`
	Valid   int64     `json:"valid"`
	Invalid int64     `json:"invalid"`
}

// JoinedSample is a health reading paired with the shares of the same GPU
// at the same timestamp.
type JoinedSample struct {
	Time    time.Time          `json:"time"`
	GPUNo   int                `json:"gpu_no"`
	Health  model.HealthSample `json:"health"`
	Valid   int64              `json:"valid"`
	Invalid int64              `json:"invalid"`
}

// GPUShare is one GPU's share of valid and invalid submissions.
type GPUShare struct {
	GPUNo           int     `json:"gpu_no"`
	Valid           int64   `json:"valid"`
	Invalid         int64   `json:"invalid"`
	ValidFraction   float64 `json:"valid_fraction"`
	InvalidFraction float64 `json:"invalid_fraction"`
}

type sampleKey struct {
	t     int64
	gpuNo int
}

// BucketShares groups samples by exact timestamp and sums their counts.
// Buckets are returned in time order.
func BucketShares(shares []model.ShareSample) []ShareBucket {
	index := make(map[int64]int)
	var buckets []ShareBucket

	for _, s := range shares {
		key := s.Start.UnixNano()
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, ShareBucket{Time: s.Start})
		}
		buckets[i].Valid += s.Valid
		buckets[i].Invalid += s.Invalid
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Time.Before(buckets[j].Time)
	})
	return buckets
}

// Join pairs health and share samples on (timestamp, gpu_no). Keys present
// in only one input are dropped.
func Join(health []model.HealthSample, shares []model.ShareSample) []JoinedSample {
	counts := make(map[sampleKey]ShareBucket, len(shares))
	for _, s := range shares {
		key := sampleKey{t: s.Start.UnixNano(), gpuNo: s.GPUNo}
		b := counts[key]
		b.Valid += s.Valid
		b.Invalid += s.Invalid
		counts[key] = b
	}

	var joined []JoinedSample
	for _, h := range health {
		b, ok := counts[sampleKey{t: h.Time.UnixNano(), gpuNo: h.GPUNo}]
		if !ok {
			continue
		}
		joined = append(joined, JoinedSample{
			Time:    h.Time,
			GPUNo:   h.GPUNo,
			Health:  h,
			Valid:   b.Valid,
			Invalid: b.Invalid,
		})
	}

	sort.SliceStable(joined, func(i, j int) bool {
		if !joined[i].Time.Equal(joined[j].Time) {
			return joined[i].Time.Before(joined[j].Time)
		}
		return joined[i].GPUNo < joined[j].GPUNo
	})
	return joined
}

// Breakdown computes each GPU's valid and invalid fractions over the joined
// samples. GPUs without any shares are left out.
func Breakdown(joined []JoinedSample) []GPUShare {
	totals := make(map[int]*GPUShare)
	for _, j := range joined {
		g, ok := totals[j.GPUNo]
		if !ok {
			g = &GPUShare{GPUNo: j.GPUNo}
			totals[j.GPUNo] = g
		}
		g.Valid += j.Valid
		g.Invalid += j.Invalid
	}

	out := make([]GPUShare, 0, len(totals))
	for _, g := range totals {
		total := g.Valid + g.Invalid
		if total == 0 {
			continue
		}
		g.ValidFraction = float64(g.Valid) / float64(total)
		g.InvalidFraction = float64(g.Invalid) / float64(total)
		out = append(out, *g)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GPUNo < out[j].GPUNo })
	return out
}
