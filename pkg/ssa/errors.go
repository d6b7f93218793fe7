package ssa

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/smplc/pkg/ir"
)

// ErrEntryAssignment is returned when a variable is assigned in block 0.
// Block 0 only owns the constant pool.
var ErrEntryAssignment = errors.Wrap(errdefs.ErrFailedPrecondition, "variables cannot live in the entry block")

func invalidBlock(id ir.BlockID) error {
	return errors.Wrapf(errdefs.ErrInvalidArgument, "block %d does not exist", id)
}

func invalidInst(id ir.InstID) error {
	return errors.Wrapf(errdefs.ErrInvalidArgument, "instruction %d does not exist", id)
}
