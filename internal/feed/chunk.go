package feed

// ChunkStrings splits items into groups of at most size, preserving
// order. Used by adapters whose venue caps the number of symbols per
// subscribe message (spec §4.3: "exchanges that limit subscription
// batches must chunk").
func ChunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
