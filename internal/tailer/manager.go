package tailer

import (
	"context"
	"errors"
	"sync"

	"github.com/viniciushammett/go-threat-monitor/internal/logger"
)

// RunAll starts one goroutine per tailer and waits for all of them. A tailer
// that stops early does not affect the others.
func RunAll(ctx context.Context, log *logger.Logger, ts []*Tailer) {
	var wg sync.WaitGroup
	for _, t := range ts {
		wg.Add(1)
		go func(t *Tailer) {
			defer wg.Done()
			if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("source", t.Name()).Msg("tailer stopped")
			}
		}(t)
	}
	wg.Wait()
}
