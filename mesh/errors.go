package mesh

import "errors"

var (
	// ErrStiffnessMissing is returned when an operation needs cached
	// element stiffness that has not been computed yet
	ErrStiffnessMissing = errors.New("element stiffness not computed")

	// ErrCollapsedElement is returned when a weld would make an element
	// reference the same node twice
	ErrCollapsedElement = errors.New("weld collapses element")
)
