package types

// Bit is the unit of storage in a namespace data actor: one sample of
// a metric at a point in time, carrying a value and a set of
// dimensions used for filtering and grouping.
type Bit struct {
	// ID is the ULID assigned when the bit is first accepted by the
	// write coordinator. It is not part of the dedup identity, which
	// SameIdentity defines over (Timestamp, Value, Dimensions) alone.
	ID ULID `json:"id"`

	// Timestamp is the epoch-millisecond instant this sample belongs to.
	Timestamp int64 `json:"timestamp"`

	// Value is the metric's measured value at Timestamp.
	Value Value `json:"value"`

	// Dimensions are the named scalar attributes the write carried
	// alongside Value, used for WHERE filtering and GROUP BY.
	Dimensions map[string]Value `json:"dimensions"`
}

// DimensionKey computes a string key identifying this bit's dimension
// set for dedup and indexing purposes. Order is fixed by iterating a
// sorted key list, not map order, so the key is stable.
func (b Bit) DimensionKey() string {
	keys := make([]string, 0, len(b.Dimensions))
	for k := range b.Dimensions {
		keys = append(keys, k)
	}
	sortStrings(keys)
	out := ""
	for _, k := range keys {
		out += k + "=" + b.Dimensions[k].String() + ";"
	}
	return out
}

// sortStrings avoids importing "sort" into a one-line helper's call
// site repeatedly; kept local to bit.go since it's only used here.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// SameIdentity reports whether two bits represent the same logical
// sample for dedup purposes: equal timestamp, equal value, and equal
// dimension set. The ULID is deliberately excluded — at-least-once
// delivery can hand two different IDs to what is semantically the
// same write.
func (b Bit) SameIdentity(other Bit) bool {
	if b.Timestamp != other.Timestamp {
		return false
	}
	if !b.Value.Equal(other.Value) {
		return false
	}
	if len(b.Dimensions) != len(other.Dimensions) {
		return false
	}
	for k, v := range b.Dimensions {
		ov, ok := other.Dimensions[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
