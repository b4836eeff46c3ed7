package command

import (
	"context"
	"time"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/application/query"
	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/logger"
	"github.com/skillpath/skillpath-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM CREDENTIAL COMMAND
// Mints the trophy for a completed course. Eligibility is checked first so
// learners get a clear refusal; the ledger's atomic claim is still the only
// guard against a double mint.
// ══════════════════════════════════════════════════════════════════════════════

// ClaimCredentialCommand asks to mint the credential for CourseID.
type ClaimCredentialCommand struct {
	Identity string
	CourseID string

	CorrelationID string
}

// ClaimCredentialResult holds the issued credential.
type ClaimCredentialResult struct {
	Credential credential.Credential
	Attempts   int
	Events     []shared.Event
}

// EligibilityChecker is the read side the claim consults before minting.
type EligibilityChecker interface {
	Handle(ctx context.Context, q query.CheckEligibilityQuery) (*query.EligibilityDTO, error)
}

// ClaimCredentialHandler handles ClaimCredentialCommand.
type ClaimCredentialHandler struct {
	ledger         credential.Ledger
	eligibility    EligibilityChecker
	features       FeatureGate
	eventPublisher shared.EventPublisher
	retrier        *retry.Retrier
	log            *logger.Logger
}

// ClaimCredentialHandlerConfig tunes the handler.
type ClaimCredentialHandlerConfig struct {
	// MaxAttempts bounds retries of transient ledger failures.
	MaxAttempts int
}

// NewClaimCredentialHandler creates a new ClaimCredentialHandler.
func NewClaimCredentialHandler(
	ledger credential.Ledger,
	eligibility EligibilityChecker,
	features FeatureGate,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	cfg ClaimCredentialHandlerConfig,
) *ClaimCredentialHandler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("claim_credential"))

	r := retry.ClaimRetrier().With(
		retry.WithRetryIf(shared.IsRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("ledger claim failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err))
		}),
	)
	if cfg.MaxAttempts > 0 {
		r = r.With(retry.WithMaxAttempts(cfg.MaxAttempts))
	}

	return &ClaimCredentialHandler{
		ledger:         ledger,
		eligibility:    eligibility,
		features:       gateOrDefault(features),
		eventPublisher: publisherOrNop(eventPublisher),
		retrier:        r,
		log:            log,
	}
}

// Handle executes the command.
//
// Errors: ErrNotEligible when the course is below 100%, ErrAlreadyClaimed
// when a credential exists (including a lost race), ErrCourseNotFound when
// the course is not registered in the ledger.
func (h *ClaimCredentialHandler) Handle(ctx context.Context, cmd ClaimCredentialCommand) (*ClaimCredentialResult, error) {
	if _, err := shared.NewIdentity(cmd.Identity); err != nil {
		return nil, err
	}
	if !h.features.IsEnabled(config.FeatureLedgerClaims, cmd.Identity) {
		return nil, shared.ErrFeatureDisabled.Withf("%s", config.FeatureLedgerClaims)
	}

	elig, err := h.eligibility.Handle(ctx, query.CheckEligibilityQuery{Identity: cmd.Identity, CourseID: cmd.CourseID})
	if err != nil {
		return nil, err
	}
	if elig.AlreadyClaimed {
		return nil, shared.ErrAlreadyClaimed.Withf("owner %s course %s", cmd.Identity, cmd.CourseID)
	}
	if !elig.Eligible {
		return nil, shared.ErrNotEligible.Withf("course %s at %d%%", cmd.CourseID, elig.Percent)
	}

	attempts := 0
	cred, err := retry.DoWithData(ctx, h.retrier, func(ctx context.Context) (credential.Credential, error) {
		attempts++
		return h.ledger.Claim(ctx, cmd.Identity, cmd.CourseID)
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("credential issued",
		logger.Identity(cmd.Identity),
		logger.CourseID(cmd.CourseID),
		logger.TokenID(cred.TokenID))

	ev := shared.NewCredentialClaimedEvent(cred.Owner, cred.TokenID, cred.CourseID, cred.CourseName, cred.IssuedAt)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	_ = h.eventPublisher.Publish(ev)

	return &ClaimCredentialResult{
		Credential: cred,
		Attempts:   attempts,
		Events:     []shared.Event{ev},
	}, nil
}
