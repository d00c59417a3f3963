package media

import "context"

// DimensionPolicy decides per record whether the strict dimension check
// applies. def is the configured default.
type DimensionPolicy interface {
	EnforceDimensions(ctx context.Context, recordID int64, def bool) bool
}

// DefaultPolicy keeps the configured default for every record.
type DefaultPolicy struct{}

func (DefaultPolicy) EnforceDimensions(_ context.Context, _ int64, def bool) bool {
	return def
}

// ExemptPolicy turns the dimension check off for the listed records.
type ExemptPolicy struct {
	Records map[int64]bool
}

// NewExemptPolicy builds an ExemptPolicy from a list of record ids.
func NewExemptPolicy(ids []int64) ExemptPolicy {
	p := ExemptPolicy{Records: make(map[int64]bool, len(ids))}
	for _, id := range ids {
		p.Records[id] = true
	}
	return p
}

func (p ExemptPolicy) EnforceDimensions(_ context.Context, recordID int64, def bool) bool {
	if p.Records[recordID] {
		return false
	}
	return def
}
