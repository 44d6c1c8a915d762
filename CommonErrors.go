package liquidbox

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Contract violations. These indicate caller misuse and are raised as
// panics carrying a *ContractError; use errors.Is on the recovered value
// to tell them apart.
var (
	ErrWorldLocked        = errors.New("world is locked")
	ErrStaleHandle        = errors.New("entity already destroyed")
	ErrInvalidJointLength = errors.New("distance joint length must be positive")
	ErrSameBody           = errors.New("joint bodies must differ")
	ErrSameGroup          = errors.New("particle groups must differ")
	ErrStackNotEmpty      = errors.New("scratch stack not empty at end of step")
	ErrStackOrder         = errors.New("scratch stack released out of order")
	ErrInvalidShape       = errors.New("invalid shape")
	ErrParticleCapacity   = errors.New("particle system is full")
	ErrForeignEntity      = errors.New("entity belongs to another world")
	ErrUnknownJointDef    = errors.New("unsupported joint definition")
	errInternal           = errors.New("internal invariant broken")
)

// ContractError is the panic value for a contract violation.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("liquidbox: %s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// violation logs and raises a contract violation.
func violation(log *zap.Logger, op string, err error) {
	if log != nil {
		log.Error("contract violation", zap.String("op", op), zap.Error(err))
	}
	panic(&ContractError{Op: op, Err: err})
}

func assert(ok bool) {
	if !ok {
		panic(&ContractError{Op: "assert", Err: errInternal})
	}
}
