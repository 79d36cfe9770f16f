package ports

import (
	"context"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

// CycleRunner is the inbound contract for one batch cycle of either pipeline
// half. A cycle is invoked by an external scheduler; per-item failures are
// reported, not raised.
type CycleRunner interface {
	RunCycle(ctx context.Context) (domain.CycleReport, error)
}
