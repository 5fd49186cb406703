// Package chunk splits ordered slices into fixed-size contiguous parts.
//
// The main purpose is to bound the number of concurrent upstream requests:
// callers fan out over one chunk at a time instead of over the whole input.
package chunk

import "errors"

// ErrInvalidSize is returned when the requested chunk size is not positive.
var ErrInvalidSize = errors.New("chunk: size must be > 0")

// Slices partitions s into contiguous sub-slices of length size. The last
// chunk may be shorter. An empty input yields zero chunks. The returned
// sub-slices alias the input; they are never mutated by this package.
func Slices[T any](s []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if len(s) == 0 {
		return nil, nil
	}
	out := make([][]T, 0, (len(s)+size-1)/size)
	for i := 0; i < len(s); i += size {
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
	}
	return out, nil
}
