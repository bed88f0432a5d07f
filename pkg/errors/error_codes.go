package errors

// Error codes grouped by component.
const (
	// InvalidInput (1000-1099)
	ErrMissingSourceURL   = 1000
	ErrUnsupportedScheme  = 1001
	ErrMalformedSourceURL = 1002
	ErrSourceProbeFailed  = 1003
	ErrInvalidRequestBody = 1004

	// EncoderStartupFailure (1100-1199)
	ErrEncoderNotFound    = 1100
	ErrEncoderSpawnFailed = 1101
	ErrEncoderExitedEarly = 1102

	// EncoderRuntimeFailure (1200-1299)
	ErrEncoderExitedUnexpectedly = 1200

	// Probe (1300-1399)
	ErrProbeTimeout     = 1300
	ErrProbeUnavailable = 1301
	ErrProbeRejected    = 1302

	// SystemError (1400-1499)
	ErrOutputDirectoryCreationFailed = 1400
	ErrSupervisorClosed              = 1401
	ErrSegmentDeleteFailed           = 1402
	ErrServerUnreachable             = 1403
	ErrUnexpectedResponse            = 1404
)
