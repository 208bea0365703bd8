package engine

// Batches partitions recipients into order-preserving slices of at
// most size elements. The last batch may be shorter. The returned
// slices alias the input; callers must not mutate them.
func Batches(recipients []string, size int) [][]string {
	if size <= 0 || len(recipients) == 0 {
		return nil
	}

	out := make([][]string, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		out = append(out, recipients[start:end])
	}
	return out
}
