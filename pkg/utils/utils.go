// Package utils has small generic helpers.
package utils

// Map converts each element of sli with mapper.
//
// The result is never nil, even if sli is nil.
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		ret[nth] = mapper(v)
	}
	return ret
}

// Default dereferences p, or returns d for nil.
func Default[T any](p *T, d T) T {
	if p != nil {
		return *p
	}
	return d
}
