package processor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

// DefaultBatchSize is how many conversations are buffered before a bulk
// insert.
const DefaultBatchSize = 10

// batcher buffers answered conversations and writes them in bulk.
type batcher struct {
	mu      sync.Mutex
	pending []model.Conversation
	size    int
	store   store.Store
	logger  *slog.Logger
}

func newBatcher(st store.Store, size int, logger *slog.Logger) *batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &batcher{store: st, size: size, logger: logger}
}

// add buffers conv and flushes once the batch is full.
func (b *batcher) add(ctx context.Context, conv model.Conversation) {
	b.mu.Lock()
	b.pending = append(b.pending, conv)
	full := len(b.pending) >= b.size
	b.mu.Unlock()
	if full {
		b.flush(ctx, false)
	}
}

func (b *batcher) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// flush writes the buffered conversations. Without force it only writes a
// full batch. A failed bulk insert is retried one document at a time, and
// documents that still fail are dropped with an error log. It returns how
// many documents were written.
func (b *batcher) flush(ctx context.Context, force bool) int {
	b.mu.Lock()
	if len(b.pending) == 0 || (!force && len(b.pending) < b.size) {
		b.mu.Unlock()
		return 0
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	// Settling a cancelled request still has to persist what was answered.
	ctx = context.WithoutCancel(ctx)

	err := b.store.InsertConversations(ctx, batch)
	if err == nil {
		b.logger.Info("bulk inserted conversations", "count", len(batch))
		return len(batch)
	}
	b.logger.Error("failed to bulk insert conversations", "count", len(batch), "error", err)

	written := 0
	for _, conv := range batch {
		if err := b.store.InsertConversation(ctx, conv); err != nil {
			b.logger.Error("failed to insert conversation",
				"request_id", conv.RequestID, "thread_id", conv.ThreadID, "error", err)
			continue
		}
		written++
	}
	b.logger.Info("inserted conversations individually", "count", written, "failed", len(batch)-written)
	return written
}
