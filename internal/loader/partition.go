package loader

// Partition splits roster into ceil(len/size) contiguous groups, preserving order.
// Every city lands in exactly one group; only the last group may be short.
// A size below 1 is treated as 1.
func Partition(roster []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	if len(roster) == 0 {
		return nil
	}
	groups := make([][]string, 0, (len(roster)+size-1)/size)
	for start := 0; start < len(roster); start += size {
		end := min(start+size, len(roster))
		group := make([]string, end-start)
		copy(group, roster[start:end])
		groups = append(groups, group)
	}
	return groups
}
