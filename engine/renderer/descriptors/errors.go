package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/core"
)

// BudgetError reports a descriptor request that does not fit the configured
// pool. Exhausted is set when the device refused an allocation even though
// the request was inside the budget.
type BudgetError struct {
	Category  string
	Requested uint32
	Budget    uint32
	Exhausted bool
}

func (e *BudgetError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("descriptor pool exhausted: %s requested %d, budget %d", e.Category, e.Requested, e.Budget)
	}
	return fmt.Sprintf("descriptor budget exceeded: %s requested %d, budget %d", e.Category, e.Requested, e.Budget)
}

func (e *BudgetError) Unwrap() error {
	if e.Exhausted {
		return core.ErrResourceExhaustion
	}
	return core.ErrConfiguration
}
