package usecase

import (
	"fmt"

	"telegram-ai-entitlements/internal/domain"
)

// storeErr marks a storage failure as retryable. The cause stays in the chain
// for logging.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransientStore, err)
}
