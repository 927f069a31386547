package controller

import (
	"fmt"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
)

// CheckCapacity enforces spec.md §4.4's concurrency cap: only
// pending+running scans count against maxConcurrent, since Registry
// retires terminal scans from active_scans as soon as they're observed.
func CheckCapacity(reg *Registry, maxConcurrent int) error {
	if active := reg.CountActive(); active >= maxConcurrent {
		return fmt.Errorf("%w: %d/%d running+pending scans", apperr.ErrCapacity, active, maxConcurrent)
	}
	return nil
}
