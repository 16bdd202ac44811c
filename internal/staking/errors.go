package staking

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed pool operation.
type ErrorKind uint8

const (
	InvalidFee ErrorKind = iota + 1
	Unauthorized
	InvalidIndex
	NotFound
	CapacityExceeded
	InvalidWeight
	ZeroWeight
	NonZeroSupply
	InsufficientLiquidity
	InsufficientSupply
	MathOverflow
	Underflow
	InvalidAmount
	InvalidIdentity
)

var kindNames = map[ErrorKind]string{
	InvalidFee:            "invalid fee",
	Unauthorized:          "unauthorized",
	InvalidIndex:          "invalid index",
	NotFound:              "not found",
	CapacityExceeded:      "capacity exceeded",
	InvalidWeight:         "invalid weight",
	ZeroWeight:            "zero weight",
	NonZeroSupply:         "non-zero supply",
	InsufficientLiquidity: "insufficient liquidity",
	InsufficientSupply:    "insufficient supply",
	MathOverflow:          "math overflow",
	Underflow:             "underflow",
	InvalidAmount:         "invalid amount",
	InvalidIdentity:       "invalid identity",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error kind %d", uint8(k))
}

// Error is returned by every failing pool operation.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidFee            = &Error{Kind: InvalidFee}
	ErrUnauthorized          = &Error{Kind: Unauthorized}
	ErrInvalidIndex          = &Error{Kind: InvalidIndex}
	ErrNotFound              = &Error{Kind: NotFound}
	ErrCapacityExceeded      = &Error{Kind: CapacityExceeded}
	ErrInvalidWeight         = &Error{Kind: InvalidWeight}
	ErrZeroWeight            = &Error{Kind: ZeroWeight}
	ErrNonZeroSupply         = &Error{Kind: NonZeroSupply}
	ErrInsufficientLiquidity = &Error{Kind: InsufficientLiquidity}
	ErrInsufficientSupply    = &Error{Kind: InsufficientSupply}
	ErrMathOverflow          = &Error{Kind: MathOverflow}
	ErrUnderflow             = &Error{Kind: Underflow}
	ErrInvalidAmount         = &Error{Kind: InvalidAmount}
	ErrInvalidIdentity       = &Error{Kind: InvalidIdentity}
)

func errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, looking through wrapped errors.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
