package errors

// ErrorMessages holds the standard user-facing message for each error code.
var ErrorMessages = map[int]string{
	ErrMissingSourceURL:   "A source URL is required.",
	ErrUnsupportedScheme:  "Invalid RTSP/RTMP URL format. Only rtsp:// and rtmp:// sources are accepted.",
	ErrMalformedSourceURL: "The source URL could not be parsed or has no host.",
	ErrSourceProbeFailed:  "The source stream could not be reached or inspected.",
	ErrInvalidRequestBody: "The request body is not valid JSON.",

	ErrEncoderNotFound:    "FFmpeg not found. Install FFmpeg and make sure it is in your PATH.",
	ErrEncoderSpawnFailed: "The encoder process could not be started.",
	ErrEncoderExitedEarly: "The encoder exited during startup. Check the source URL and encoder output.",

	ErrEncoderExitedUnexpectedly: "The encoder exited while the stream was running.",

	ErrProbeTimeout:     "Timed out while inspecting the source stream.",
	ErrProbeUnavailable: "FFprobe not found. The source stream was not validated.",
	ErrProbeRejected:    "FFprobe could not read the source stream.",

	ErrOutputDirectoryCreationFailed: "Failed to create the stream output directory. Check permissions.",
	ErrSupervisorClosed:              "The stream supervisor is shutting down.",
	ErrSegmentDeleteFailed:           "Failed to delete an old stream segment.",
	ErrServerUnreachable:             "Could not reach the rtsp2hls server.",
	ErrUnexpectedResponse:            "The rtsp2hls server returned an unexpected response.",
}

// GetErrorMessage returns the standard message for an error code.
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "Unknown error."
}
