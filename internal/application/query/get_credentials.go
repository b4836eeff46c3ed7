package query

import (
	"context"
	"fmt"

	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIAL QUERIES
// Read side of the ledger: holdings, metadata documents and registry reads.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserCredentialsQuery lists the credentials of an identity.
type GetUserCredentialsQuery struct {
	Identity string
}

// GetUserCredentialsHandler handles GetUserCredentialsQuery.
type GetUserCredentialsHandler struct {
	ledger credential.Ledger
}

// NewGetUserCredentialsHandler creates a new GetUserCredentialsHandler.
func NewGetUserCredentialsHandler(ledger credential.Ledger) *GetUserCredentialsHandler {
	return &GetUserCredentialsHandler{ledger: ledger}
}

// Handle returns the credentials newest first.
func (h *GetUserCredentialsHandler) Handle(ctx context.Context, q GetUserCredentialsQuery) ([]credential.Credential, error) {
	if _, err := shared.NewIdentity(q.Identity); err != nil {
		return nil, err
	}
	creds, err := h.ledger.CredentialsOf(ctx, q.Identity)
	if err != nil {
		return nil, fmt.Errorf("get_user_credentials: %w", err)
	}
	credential.SortNewestFirst(creds)
	return creds, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Metadata
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentialMetadataQuery requests the metadata of one token.
type GetCredentialMetadataQuery struct {
	TokenID uint64
}

// CredentialMetadataDTO is a credential with its public document.
type CredentialMetadataDTO struct {
	Credential credential.Credential `json:"credential"`
	Metadata   credential.Metadata   `json:"metadata"`
	TokenURI   string                `json:"token_uri"`
	Digest     string                `json:"digest"`
}

// GetCredentialMetadataHandler handles GetCredentialMetadataQuery.
type GetCredentialMetadataHandler struct {
	ledger credential.Ledger
}

// NewGetCredentialMetadataHandler creates a new GetCredentialMetadataHandler.
func NewGetCredentialMetadataHandler(ledger credential.Ledger) *GetCredentialMetadataHandler {
	return &GetCredentialMetadataHandler{ledger: ledger}
}

// Handle renders the document. Unknown tokens yield ErrTokenNotFound. The
// image is the registry's current trophy image for the course.
func (h *GetCredentialMetadataHandler) Handle(ctx context.Context, q GetCredentialMetadataQuery) (*CredentialMetadataDTO, error) {
	cred, err := h.ledger.Credential(ctx, q.TokenID)
	if err != nil {
		return nil, err
	}

	var image string
	course, err := h.ledger.Course(ctx, cred.CourseID)
	switch {
	case err == nil:
		image = course.ImageURI
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("get_credential_metadata: registry: %w", err)
	}

	meta := credential.RenderMetadata(cred, image)
	uri, err := meta.TokenURI()
	if err != nil {
		return nil, fmt.Errorf("get_credential_metadata: encode: %w", err)
	}
	digest, err := meta.Digest()
	if err != nil {
		return nil, fmt.Errorf("get_credential_metadata: digest: %w", err)
	}

	return &CredentialMetadataDTO{
		Credential: cred,
		Metadata:   meta,
		TokenURI:   uri,
		Digest:     digest,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry and ledger reads
// ─────────────────────────────────────────────────────────────────────────────

// LedgerReadHandler serves the small point reads of the ledger.
type LedgerReadHandler struct {
	ledger credential.Ledger
}

// NewLedgerReadHandler creates a new LedgerReadHandler.
func NewLedgerReadHandler(ledger credential.Ledger) *LedgerReadHandler {
	return &LedgerReadHandler{ledger: ledger}
}

// CourseEntry returns a registry entry or ErrCourseNotFound.
func (h *LedgerReadHandler) CourseEntry(ctx context.Context, courseID string) (credential.Course, error) {
	return h.ledger.Course(ctx, courseID)
}

// Courses lists the registry.
func (h *LedgerReadHandler) Courses(ctx context.Context) ([]credential.Course, error) {
	return h.ledger.Courses(ctx)
}

// HasClaimed reports whether identity holds the course credential.
func (h *LedgerReadHandler) HasClaimed(ctx context.Context, identity, courseID string) (bool, error) {
	return h.ledger.HasClaimed(ctx, identity, courseID)
}

// OwnerOf returns the owner of a token or ErrTokenNotFound.
func (h *LedgerReadHandler) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	c, err := h.ledger.Credential(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return c.Owner, nil
}

// LedgerStatsDTO holds supply figures.
type LedgerStatsDTO struct {
	TotalSupply uint64 `json:"total_supply"`
	Balance     *int   `json:"balance,omitempty"`
}

// Stats returns the total supply and, when owner is set, its balance.
func (h *LedgerReadHandler) Stats(ctx context.Context, owner string) (*LedgerStatsDTO, error) {
	supply, err := h.ledger.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	dto := &LedgerStatsDTO{TotalSupply: supply}
	if owner != "" {
		bal, err := h.ledger.BalanceOf(ctx, owner)
		if err != nil {
			return nil, err
		}
		dto.Balance = &bal
	}
	return dto, nil
}

// GetApproved always reports no approved party, for minted and unknown
// tokens alike.
func (h *LedgerReadHandler) GetApproved(ctx context.Context, tokenID uint64) string {
	return h.ledger.GetApproved(ctx, tokenID)
}

// IsApprovedForAll always reports false.
func (h *LedgerReadHandler) IsApprovedForAll(ctx context.Context, owner, operator string) bool {
	return h.ledger.IsApprovedForAll(ctx, owner, operator)
}
