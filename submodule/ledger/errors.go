package ledger

import "errors"

var (
	ErrClockSkew    = errors.New("timestamp is before the last applied period")
	ErrBadNonce     = errors.New("message nonce is wrong")
	ErrUnknownMsg   = errors.New("unknown message method")
	ErrInvalidParam = errors.New("invalid message params")
	ErrBadHeight    = errors.New("block height is not next")

	ErrInsufficientBalance = errors.New("insufficient balance")

	// staking escrow
	ErrUnknownStaker         = errors.New("unknown staker")
	ErrInsufficientStake     = errors.New("insufficient stake")
	ErrStakeTooLarge         = errors.New("locked tokens exceed the allowed maximum")
	ErrLockedPeriodsTooShort = errors.New("locked periods too short")
	ErrTooManySubStakes      = errors.New("too many sub-stakes")
	ErrUnknownSubStake       = errors.New("unknown sub-stake")
	ErrInactiveSubStake      = errors.New("sub-stake is not active for the next period")
	ErrAlreadyCommitted      = errors.New("already committed to the next period")
	ErrInsufficientUnlocked  = errors.New("value exceeds unlocked tokens")
	ErrWorkerInUse           = errors.New("worker is bound to another staker")

	// policy manager
	ErrPolicyAlreadyExists = errors.New("policy already exists")
	ErrUnknownPolicy       = errors.New("unknown policy")
	ErrPolicyInactive      = errors.New("policy is disabled")
	ErrUnknownArrangement  = errors.New("unknown or inactive arrangement")
	ErrUnknownNode         = errors.New("node is not a registered staker")
	ErrNotAuthorized       = errors.New("sender is not authorized")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")

	// adjudicator
	ErrEvidenceUsed    = errors.New("evidence was already evaluated")
	ErrInvalidEvidence = errors.New("evidence is not attributable")
	ErrUnknownWorker   = errors.New("signer is not bound to a staker")
	ErrCorrectCFrag    = errors.New("cfrag is correct")
)
