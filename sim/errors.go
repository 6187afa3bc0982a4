package sim

import "errors"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicatePolicy   = errors.New("duplicate policy")
	ErrDuplicateActor    = errors.New("duplicate actor")
	ErrDuplicateRole     = errors.New("duplicate role")
	ErrDuplicateProduct  = errors.New("duplicate product")
	ErrNegativeAmount    = errors.New("negative amount")
)
