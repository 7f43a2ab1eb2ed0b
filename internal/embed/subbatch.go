package embed

import "log/slog"

// tokenBatch is a group of input indices that fits the token budget.
type tokenBatch struct {
	indices []int
	tokens  int
}

// buildTokenBatches groups text indices into request-sized batches
// using the cheap token estimate. Texts above the per-item ceiling are
// returned in oversized and never sent to the provider. Empty texts
// are skipped entirely; callers fill them with zero vectors.
func buildTokenBatches(texts []string, batchSize, itemLimit, batchBudget int) (batches []tokenBatch, oversized []int) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if itemLimit <= 0 {
		itemLimit = DefaultItemTokenLimit
	}
	if batchBudget <= 0 {
		batchBudget = DefaultBatchTokenBudget
	}

	var current tokenBatch
	flush := func() {
		if len(current.indices) > 0 {
			batches = append(batches, current)
			current = tokenBatch{}
		}
	}

	for i, text := range texts {
		if text == "" {
			continue
		}

		tokens := estimateTokens(text)
		if tokens > itemLimit {
			oversized = append(oversized, i)
			slog.Warn("excluding oversized text from embedding request",
				slog.Int("index", i),
				slog.Int("estimated_tokens", tokens),
				slog.Int("limit", itemLimit))
			continue
		}

		if len(current.indices) >= batchSize || current.tokens+tokens > batchBudget {
			flush()
		}
		current.indices = append(current.indices, i)
		current.tokens += tokens
	}
	flush()

	return batches, oversized
}
