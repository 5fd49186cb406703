package chunk

import (
	"errors"
	"reflect"
	"testing"
)

func TestSlices(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []int
		size int
		want [][]int
	}{
		{name: "even split", in: []int{1, 2, 3, 4}, size: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "short tail", in: []int{1, 2, 3, 4, 5}, size: 2, want: [][]int{{1, 2}, {3, 4}, {5}}},
		{name: "size exceeds input", in: []int{1, 2, 3}, size: 10, want: [][]int{{1, 2, 3}}},
		{name: "size equals input", in: []int{1, 2, 3}, size: 3, want: [][]int{{1, 2, 3}}},
		{name: "single element chunks", in: []int{7, 8}, size: 1, want: [][]int{{7}, {8}}},
		{name: "empty input", in: nil, size: 5, want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Slices(tt.in, tt.size)
			if err != nil {
				t.Fatalf("Slices(%v, %d) error: %v", tt.in, tt.size, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Slices(%v, %d) = %v, want %v", tt.in, tt.size, got, tt.want)
			}
		})
	}
}

func TestSlicesInvalidSize(t *testing.T) {
	t.Parallel()
	for _, size := range []int{0, -1, -100} {
		if _, err := Slices([]int{1, 2, 3}, size); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("Slices(size=%d) error = %v, want ErrInvalidSize", size, err)
		}
	}
}

// Concatenating all chunks must reconstruct the input exactly.
func TestSlicesReassembles(t *testing.T) {
	t.Parallel()
	in := []string{"a", "b", "c", "d", "e", "f", "g"}
	for size := 1; size <= len(in)+2; size++ {
		chunks, err := Slices(in, size)
		if err != nil {
			t.Fatalf("Slices(size=%d) error: %v", size, err)
		}
		var flat []string
		for _, c := range chunks {
			flat = append(flat, c...)
		}
		if !reflect.DeepEqual(flat, in) {
			t.Fatalf("size=%d: reassembled %v, want %v", size, flat, in)
		}
		wantLast := len(in) % size
		if wantLast == 0 {
			wantLast = size
		}
		if wantLast > len(in) {
			wantLast = len(in)
		}
		if got := len(chunks[len(chunks)-1]); got != wantLast {
			t.Fatalf("size=%d: last chunk len = %d, want %d", size, got, wantLast)
		}
	}
}
