package domain

import (
	"errors"
	"fmt"
)

// Kind clasifica los errores del dominio para que la capa HTTP
// (y cualquier otro caller) pueda decidir sin inspeccionar mensajes.
type Kind string

const (
	KindNotFound      Kind = "NOT_FOUND"
	KindStateConflict Kind = "STATE_CONFLICT"
	KindValidation    Kind = "VALIDATION"
	KindConfiguration Kind = "CONFIGURATION"
	KindInternal      Kind = "INTERNAL"
)

type Reason string

const (
	ReasonLotNotFound      Reason = "lot_not_found"
	ReasonGrantNotFound    Reason = "grant_not_found"
	ReasonCouponNotFound   Reason = "coupon_not_found"
	ReasonPurchaseNotFound Reason = "purchase_not_found"
	ReasonRewardNotFound   Reason = "reward_item_not_found"

	ReasonStockUnavailable  Reason = "stock_unavailable"
	ReasonLotNotOnSale      Reason = "lot_not_on_sale"
	ReasonCouponAlreadyUsed Reason = "coupon_already_used"
	ReasonCouponNotOwned    Reason = "coupon_not_owned"
	ReasonNotOwner          Reason = "not_owner"
	ReasonAlreadyCancelled  Reason = "already_cancelled"
	ReasonWindowExceeded    Reason = "window_exceeded"
	ReasonLockBusy          Reason = "lock_busy"

	ReasonCouponNotValid      Reason = "coupon_not_valid"
	ReasonBelowMinPurchase    Reason = "below_min_purchase"
	ReasonInvalidProbability  Reason = "invalid_probability"
	ReasonProbabilityOverflow Reason = "probability_overflow"
	ReasonInvalidQuantity     Reason = "invalid_quantity"
	ReasonInvalidLot          Reason = "invalid_lot"
	ReasonInvalidCoupon       Reason = "invalid_coupon"
	ReasonInvalidRarity       Reason = "invalid_rarity"

	ReasonNoRewardItems Reason = "no_reward_items"

	ReasonCompensationFailed Reason = "compensation_failed"
	ReasonStoreFailure       Reason = "store_failure"
)

type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(reason Reason, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Conflict(reason Reason, format string, args ...any) *Error {
	return &Error{Kind: KindStateConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Invalid(reason Reason, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Misconfigured(reason Reason, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and reason to an underlying failure.
func Wrap(kind Kind, reason Reason, msg string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: msg, Err: err}
}

// KindOf returns KindInternal for errors that carry no domain classification.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func ReasonOf(err error) Reason {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

func HasReason(err error, reason Reason) bool {
	var de *Error
	return errors.As(err, &de) && de.Reason == reason
}
