package statements

import "errors"

var (
	// ErrNilReport occurs when a batch is started without a report.
	ErrNilReport = errors.New("statements: report required")
	// ErrNilData occurs when a batch is started without a period.
	ErrNilData = errors.New("statements: report data required")
	// ErrNoColumns occurs when the report defines no columns at all.
	ErrNoColumns = errors.New("statements: report has no columns")
	// ErrDuplicateColumn occurs when two columns share (type, range, year).
	ErrDuplicateColumn = errors.New("statements: duplicate column")
	// ErrDuplicateIdentifier occurs when two items share an identifier.
	ErrDuplicateIdentifier = errors.New("statements: duplicate item identifier")
	// ErrReportMismatch occurs when the period belongs to another report.
	ErrReportMismatch = errors.New("statements: report data belongs to another report")
	// ErrInvalidTransition indicates an update state change not allowed.
	ErrInvalidTransition = errors.New("statements: update state transition invalid")
)
