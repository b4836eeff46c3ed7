package credential

import (
	"context"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// Soulbound implements the ownership-changing half of a token interface by
// refusing every request. Credentials cannot be moved, and nobody can be
// approved to move them.
type Soulbound struct{}

// Transfer always fails with ErrSoulboundViolation.
func (Soulbound) Transfer(_ context.Context, from, to string, tokenID uint64) error {
	return shared.ErrSoulboundViolation.Withf("token %d from %s to %s", tokenID, from, to)
}

// SafeTransfer always fails with ErrSoulboundViolation.
func (s Soulbound) SafeTransfer(ctx context.Context, from, to string, tokenID uint64, _ []byte) error {
	return s.Transfer(ctx, from, to, tokenID)
}

// Approve always fails; the error matches ErrSoulboundViolation.
func (Soulbound) Approve(_ context.Context, operator string, tokenID uint64) error {
	return shared.ErrApprovalForbidden.Withf("token %d to %s", tokenID, operator)
}

// SetApprovalForAll always fails; the error matches ErrSoulboundViolation.
func (Soulbound) SetApprovalForAll(_ context.Context, owner, operator string, _ bool) error {
	return shared.ErrApprovalForbidden.Withf("owner %s operator %s", owner, operator)
}

// GetApproved reports that no party is approved for any token.
func (Soulbound) GetApproved(context.Context, uint64) string {
	return ""
}

// IsApprovedForAll reports that no operator is ever approved.
func (Soulbound) IsApprovedForAll(context.Context, string, string) bool {
	return false
}
