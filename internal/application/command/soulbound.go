package command

import (
	"context"

	"github.com/skillpath/skillpath-hub/internal/domain/credential"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSFER / APPROVAL COMMANDS
// Credentials are soulbound: every request to move a token or approve an
// operator is refused, whoever asks and whether or not the token exists.
// ══════════════════════════════════════════════════════════════════════════════

// TransferCredentialCommand asks to move a token.
type TransferCredentialCommand struct {
	From    string
	To      string
	TokenID uint64
	Safe    bool
}

// ApproveCredentialCommand asks to approve an operator for a token.
type ApproveCredentialCommand struct {
	Caller   string
	Operator string
	TokenID  uint64
}

// SetApprovalForAllCommand asks to approve an operator for every token.
type SetApprovalForAllCommand struct {
	Owner    string
	Operator string
	Approved bool
}

// SoulboundHandler routes ownership-changing requests to the ledger.
type SoulboundHandler struct {
	ledger credential.Ledger
}

// NewSoulboundHandler creates a new SoulboundHandler.
func NewSoulboundHandler(ledger credential.Ledger) *SoulboundHandler {
	return &SoulboundHandler{ledger: ledger}
}

// Transfer always fails with ErrSoulboundViolation.
func (h *SoulboundHandler) Transfer(ctx context.Context, cmd TransferCredentialCommand) error {
	if cmd.Safe {
		return h.ledger.SafeTransfer(ctx, cmd.From, cmd.To, cmd.TokenID, nil)
	}
	return h.ledger.Transfer(ctx, cmd.From, cmd.To, cmd.TokenID)
}

// Approve always fails with an error matching ErrSoulboundViolation.
func (h *SoulboundHandler) Approve(ctx context.Context, cmd ApproveCredentialCommand) error {
	return h.ledger.Approve(ctx, cmd.Operator, cmd.TokenID)
}

// SetApprovalForAll always fails with an error matching ErrSoulboundViolation.
func (h *SoulboundHandler) SetApprovalForAll(ctx context.Context, cmd SetApprovalForAllCommand) error {
	return h.ledger.SetApprovalForAll(ctx, cmd.Owner, cmd.Operator, cmd.Approved)
}
