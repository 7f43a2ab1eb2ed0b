package scanner

import "log/slog"

// BuildBatches groups chunks into embedding batches. Consecutive
// chunks are appended to the current batch until adding one would
// exceed the per-batch byte budget. Chunks larger than perItemLimit
// are skipped and counted, never silently dropped.
func BuildBatches(chunks []Chunk, perItemLimit, perBatchBudget int) ([]Batch, BatchStats) {
	var (
		batches []Batch
		current Batch
		stats   BatchStats
	)

	flush := func() {
		if len(current.Chunks) > 0 {
			batches = append(batches, current)
			current = Batch{}
		}
	}

	for _, c := range chunks {
		size := len(c.Content)

		if perItemLimit > 0 && size > perItemLimit {
			stats.Oversized++
			slog.Warn("skipping oversized chunk",
				slog.String("path", c.FilePath),
				slog.Int("start_line", c.StartLine),
				slog.Int("end_line", c.EndLine),
				slog.Int("bytes", size),
				slog.Int("limit", perItemLimit))
			continue
		}

		if perBatchBudget > 0 && current.Bytes+size > perBatchBudget {
			flush()
		}

		current.Chunks = append(current.Chunks, c)
		current.Bytes += size
		stats.Batched++
	}
	flush()

	return batches, stats
}
