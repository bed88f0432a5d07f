package errors

// ProbeTimeout indicates the stream probe did not finish within its deadline.
// Probe errors never escape as Go errors; they annotate a probe result.
const ProbeTimeout ErrorType = "probe_timeout"

// ProbeUnavailable indicates the stream inspection tool is not installed.
const ProbeUnavailable ErrorType = "probe_unavailable"

// ProbeRejected indicates the stream inspection tool ran and rejected the source.
const ProbeRejected ErrorType = "probe_rejected"
