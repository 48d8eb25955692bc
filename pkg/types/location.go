package types

// Location identifies one time-bucketed shard of a metric's data,
// assigned to a node, covering the half-open range [From, To).
type Location struct {
	Metric string `json:"metric"`
	Node   string `json:"node"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`
}

// Contains reports whether ts falls within this location's half-open range.
func (l Location) Contains(ts int64) bool {
	return ts >= l.From && ts < l.To
}

// Overlaps reports whether two locations' ranges intersect.
func (l Location) Overlaps(other Location) bool {
	return l.From < other.To && other.From < l.To
}

// MetricInfo records the sharding configuration chosen for a metric
// the first time it is written: every subsequent write must shard on
// the same interval.
type MetricInfo struct {
	Metric        string `json:"metric"`
	ShardInterval int64  `json:"shard_interval_ms"`
}

// Bucket computes which shard-interval-aligned bucket index a
// timestamp falls into: k = floor(timestamp / interval).
func (m MetricInfo) Bucket(timestamp int64) int64 {
	if m.ShardInterval <= 0 {
		return 0
	}
	if timestamp >= 0 {
		return timestamp / m.ShardInterval
	}
	// floor division for negative timestamps
	q := timestamp / m.ShardInterval
	if timestamp%m.ShardInterval != 0 {
		q--
	}
	return q
}

// LocationForBucket returns the [from, to) range covering bucket k.
func (m MetricInfo) LocationForBucket(k int64) (from, to int64) {
	from = k * m.ShardInterval
	to = from + m.ShardInterval
	return
}
