package service

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// quotationLockRetries bounds the transparent retry of the optimistic
// lock-token claim before the conflict is surfaced to the caller.
const quotationLockRetries = 3

// quotationLocker serializes mutating operations per quotation. Every write
// path loads the quotation inside a transaction, claims its lock token, and
// runs the mutation in the same transaction; losers of a concurrent claim are
// retried on a fresh snapshot.
type quotationLocker struct {
	txManager     repository.TransactionManager
	quotationRepo repository.QuotationRepository
}

func (l *quotationLocker) withQuotationLock(ctx context.Context, quotationID uuid.UUID, fn func(txCtx context.Context, quotation *model.Quotation) error) error {
	var err error
	for attempt := 0; attempt < quotationLockRetries; attempt++ {
		err = l.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			quotation, findErr := l.quotationRepo.FindByID(txCtx, quotationID)
			if findErr != nil {
				if errors.Is(findErr, gorm.ErrRecordNotFound) {
					return apperror.NotFound(apperror.CodeQuotationNotFound, "quotation not found",
						"quotation_id", quotationID.String())
				}
				return fmt.Errorf("failed to load quotation: %w", findErr)
			}
			if lockErr := l.quotationRepo.ClaimLock(txCtx, quotation); lockErr != nil {
				return lockErr
			}
			return fn(txCtx, quotation)
		})
		if !errors.Is(err, repository.ErrStaleQuotation) {
			return err
		}
	}
	return apperror.Conflict(apperror.CodeStaleQuotation, "quotation was modified concurrently",
		"quotation_id", quotationID.String(), "attempts", quotationLockRetries)
}

// parseID converts a path/body id into a UUID with a typed validation error
func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation(apperror.CodeInvalidID, fmt.Sprintf("invalid %s", field), field, raw)
	}
	return id, nil
}

// partyOf maps a user role onto a negotiation party
func partyOf(user *model.User) (string, error) {
	switch user.Role {
	case model.RoleCustomer:
		return model.PartyCustomer, nil
	case model.RoleStaff:
		return model.PartyStaff, nil
	default:
		return "", apperror.Conflict(apperror.CodeNotParticipant, "only customers and staff may negotiate",
			"user_id", user.ID.String(), "role", user.Role)
	}
}

// requireParticipant verifies the user belongs to the quotation's negotiation.
// A staff member is bound to the quotation on their first action when
// assignStaff is set; afterwards only the assigned staff may act.
func requireParticipant(quotation *model.Quotation, user *model.User, party string, assignStaff bool) error {
	switch party {
	case model.PartyCustomer:
		if quotation.CustomerID != user.ID {
			return apperror.Conflict(apperror.CodeNotParticipant, "user is not the quotation's customer",
				"quotation_id", quotation.ID.String(), "user_id", user.ID.String())
		}
	case model.PartyStaff:
		if quotation.StaffID == nil {
			if assignStaff {
				id := user.ID
				quotation.StaffID = &id
			}
			return nil
		}
		if *quotation.StaffID != user.ID {
			return apperror.Conflict(apperror.CodeNotParticipant, "quotation is assigned to another staff member",
				"quotation_id", quotation.ID.String(), "user_id", user.ID.String(),
				"assigned_staff_id", quotation.StaffID.String())
		}
	}
	return nil
}

// requireActive rejects any mutation on a finalized quotation
func requireActive(quotation *model.Quotation) error {
	if model.IsTerminalQuotationStatus(quotation.Status) {
		return apperror.Finalized(apperror.CodeQuotationFinalized, "quotation is finalized",
			"quotation_id", quotation.ID.String(), "status", quotation.Status)
	}
	return nil
}
