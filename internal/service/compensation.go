package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// step is one write in a multi-write sequence with the action that reverts it.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// runSteps executes steps in order. When one fails, the completed steps are
// undone in reverse order and the original error is returned. Undo runs on a
// context detached from cancellation so a cancelled request still reverts.
func runSteps(ctx context.Context, logger *zap.Logger, steps ...step) error {
	done := make([]step, 0, len(steps))
	for _, st := range steps {
		if err := st.do(ctx); err != nil {
			undoCtx := context.WithoutCancel(ctx)
			for i := len(done) - 1; i >= 0; i-- {
				if done[i].undo == nil {
					continue
				}
				if uerr := done[i].undo(undoCtx); uerr != nil {
					logger.Error("compensation failed", zap.String("step", done[i].name), zap.Error(uerr))
				}
			}
			logger.Warn("multi-step write aborted", zap.String("step", st.name), zap.Int("reverted", len(done)), zap.Error(err))
			return fmt.Errorf("%s: %w", st.name, err)
		}
		done = append(done, st)
	}
	return nil
}
