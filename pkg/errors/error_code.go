package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidPeriod        ErrorCode = 108
	ErrCodeMissingParameter     ErrorCode = 109
	ErrCodeInvalidVersion       ErrorCode = 110
	ErrCodeInvalidThreshold     ErrorCode = 112
	ErrCodeInvalidProvider      ErrorCode = 113

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound         ErrorCode = 200
	ErrCodeQueryFailed          ErrorCode = 202
	ErrCodeHistoricalDataFailed ErrorCode = 203
	ErrCodeJournalWriteFailed   ErrorCode = 206

	// Indicator errors (300-399)
	ErrCodeIndicatorCalculation ErrorCode = 302
	ErrCodeOutOfOrderSample     ErrorCode = 303

	// Trading and broker errors (500-599)
	ErrCodeOrderFailed            ErrorCode = 500
	ErrCodeBrokerRequest          ErrorCode = 510
	ErrCodeBrokerRejection        ErrorCode = 511
	ErrCodeReconciliationConflict ErrorCode = 520

	// Notification errors (800-899)
	ErrCodeNotificationFailed ErrorCode = 800
)
