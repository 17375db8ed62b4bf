package checklist

import "errors"

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrParentNotFound = errors.New("parent node not found")
	ErrSelfParent     = errors.New("a node cannot be its own parent")
	ErrCycle          = errors.New("not allowed: the selected parent is a descendant and would create a cycle")

	ErrColumnNotFound        = errors.New("column not found")
	ErrColumnKeyRequired     = errors.New("column key is required")
	ErrColumnLabelRequired   = errors.New("column label is required")
	ErrColumnKeyTaken        = errors.New("column key already exists")
	ErrSelectOptionsRequired = errors.New("select columns need at least one option")
	ErrFormulaRequired       = errors.New("formula columns need a formula")
	ErrColumnReadOnly        = errors.New("column is not editable")
	ErrColumnNotApplicable   = errors.New("column does not apply to this node type")
	ErrInvalidCustomValue    = errors.New("value does not match the column type")

	ErrScaleKeyRequired = errors.New("scale entry key is required")
)
