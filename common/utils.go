package common

// Coalesce picks the first set value, e.g. a pipeline key over its stage name when labelling device objects.
// It returns the zero value when every value is zero.
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
