package store

import (
	"errors"
	"testing"
)

func TestChunkRange(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      [][2]int
	}{
		{
			name:      "even split",
			total:     4,
			chunkSize: 2,
			want:      [][2]int{{0, 2}, {2, 4}},
		},
		{
			name:      "uneven tail",
			total:     5,
			chunkSize: 2,
			want:      [][2]int{{0, 2}, {2, 4}, {4, 5}},
		},
		{
			name:      "chunk larger than total",
			total:     3,
			chunkSize: 10,
			want:      [][2]int{{0, 3}},
		},
		{
			name:      "zero chunk size falls back to one chunk",
			total:     3,
			chunkSize: 0,
			want:      [][2]int{{0, 3}},
		},
		{
			name:      "empty input",
			total:     0,
			chunkSize: 2,
			want:      nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got [][2]int
			err := ChunkRange(tc.total, tc.chunkSize, func(start, end int) error {
				got = append(got, [2]int{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("ChunkRange() error = %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d chunks %v, want %d chunks %v", len(got), got, len(tc.want), tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("chunk %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 2, func(start, end int) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}
