package loader

import (
	"reflect"
	"testing"
)

// TestPartition_Properties verifies group count, coverage, order and group sizes
// for a range of roster and batch sizes.
func TestPartition_Properties(t *testing.T) {
	for n := 0; n <= 12; n++ {
		roster := make([]string, n)
		for i := range roster {
			roster[i] = string(rune('A' + i))
		}
		for size := 1; size <= 6; size++ {
			groups := Partition(roster, size)
			want := (n + size - 1) / size
			if len(groups) != want {
				t.Fatalf("Partition(%d, %d) groups = %d, want %d", n, size, len(groups), want)
			}
			var flat []string
			for i, g := range groups {
				if len(g) == 0 || len(g) > size {
					t.Errorf("Partition(%d, %d) group %d size = %d", n, size, i, len(g))
				}
				if i < len(groups)-1 && len(g) != size {
					t.Errorf("Partition(%d, %d) non-final group %d size = %d, want %d", n, size, i, len(g), size)
				}
				flat = append(flat, g...)
			}
			if n > 0 && !reflect.DeepEqual(flat, roster) {
				t.Errorf("Partition(%d, %d) concatenation = %v, want %v", n, size, flat, roster)
			}
		}
	}
}

func TestPartition_Examples(t *testing.T) {
	tests := []struct {
		name   string
		roster []string
		size   int
		want   [][]string
	}{
		{"nine by five", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}, 5,
			[][]string{{"a", "b", "c", "d", "e"}, {"f", "g", "h", "i"}}},
		{"exact fit", []string{"a", "b", "c", "d"}, 2, [][]string{{"a", "b"}, {"c", "d"}}},
		{"size larger than roster", []string{"a", "b"}, 10, [][]string{{"a", "b"}}},
		{"zero size treated as one", []string{"a", "b"}, 0, [][]string{{"a"}, {"b"}}},
		{"empty roster", nil, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Partition(tt.roster, tt.size)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Partition() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestPartition_DoesNotAlias verifies groups are copies of the roster.
func TestPartition_DoesNotAlias(t *testing.T) {
	roster := []string{"a", "b", "c"}
	groups := Partition(roster, 2)
	groups[0][0] = "z"
	if roster[0] != "a" {
		t.Errorf("roster mutated through group: %v", roster)
	}
}
