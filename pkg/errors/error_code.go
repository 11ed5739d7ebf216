package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidThreshold     ErrorCode = 102
	ErrCodeInvalidWeight        ErrorCode = 103
	ErrCodeInvalidPeriod        ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105
	ErrCodeInvalidGrid          ErrorCode = 106

	// Data errors (200-299)
	ErrCodeEmptySeries            ErrorCode = 200
	ErrCodeNonMonotonicTimestamps ErrorCode = 201
	ErrCodeInvalidBar             ErrorCode = 202
	ErrCodeSeriesLengthMismatch   ErrorCode = 203
	ErrCodeDataNotFound           ErrorCode = 204

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301
	ErrCodeMissingIndicator       ErrorCode = 302

	// Strategy errors (400-499)
	ErrCodeStrategyNotFound      ErrorCode = 400
	ErrCodeStrategyAlreadyExists ErrorCode = 401
	ErrCodeStrategyConfigError   ErrorCode = 402

	// Execution errors (500-599)
	ErrCodeInsufficientCash    ErrorCode = 500
	ErrCodeBelowMinimumOrder   ErrorCode = 501
	ErrCodeInsufficientHolding ErrorCode = 502
	ErrCodePositionAlreadyOpen ErrorCode = 503

	// Backtest errors (600-699)
	ErrCodeBacktestConfigError ErrorCode = 600
	ErrCodeBacktestCancelled   ErrorCode = 601
	ErrCodeReplayMismatch      ErrorCode = 602

	// Recorder errors (700-799)
	ErrCodeRecorderInitFailed  ErrorCode = 700
	ErrCodeRecorderWriteFailed ErrorCode = 701
	ErrCodeRecorderQueryFailed ErrorCode = 702
)
