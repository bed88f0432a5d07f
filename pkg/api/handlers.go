package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/heyjunin/rtsp2hls/pkg/errors"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, IndexResponse{
		Message: "RTSP Livestream API",
		Version: s.opts.Version,
		Endpoints: map[string]string{
			"start":   "/api/stream/start",
			"stop":    "/api/stream/stop",
			"status":  "/api/stream/status",
			"probe":   "/api/stream/probe",
			"health":  "/api/health",
			"stream":  "/stream/",
			"metrics": "/metrics",
		},
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if req.Validate {
		if err := s.stream.ValidateURL(req.RTSPURL); err != nil {
			s.writeError(w, err)
			return
		}
		result := s.prober.Probe(r.Context(), req.RTSPURL)
		if !result.OK {
			s.writeError(w, errors.New(errors.InvalidInput,
				errors.GetErrorMessage(errors.ErrSourceProbeFailed), result.Detail, errors.ErrSourceProbeFailed))
			return
		}
	}

	info, err := s.stream.Start(req.RTSPURL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StartResponse{
		HLSURL:    s.hlsURL(),
		Status:    "started",
		RTSPURL:   info.SourceURL,
		StartedAt: info.StartedAt.UTC().Format(time.RFC3339),
		SessionID: info.SessionID,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.stream.Stop()
	writeJSON(w, http.StatusOK, StopResponse{
		Status:    "stopped",
		Message:   "Stream stopped successfully",
		StoppedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.stream.Status()
	resp := StatusResponse{
		Status:    status,
		Active:    status.Running,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if status.Running {
		url := s.hlsURL()
		resp.HLSURL = &url
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.stream.ValidateURL(req.RTSPURL); err != nil {
		s.writeError(w, err)
		return
	}

	result := s.prober.Probe(r.Context(), req.RTSPURL)
	writeJSON(w, http.StatusOK, ProbeResponse{Result: result, RTSPURL: req.RTSPURL})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	dir := "missing"
	if s.sink.Exists() {
		dir = "exists"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		StreamOutputDir: dir,
		ActiveStream:    s.stream.Status().Running,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Version:         s.opts.Version,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, errors.InvalidInput,
			errors.GetErrorMessage(errors.ErrInvalidRequestBody), errors.ErrInvalidRequestBody)
	}
	return nil
}

// statusFor maps an error category to an HTTP status.
func statusFor(t errors.ErrorType) int {
	switch t {
	case errors.InvalidInput:
		return http.StatusBadRequest
	case errors.EncoderStartupFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	se, ok := errors.As(err)
	if !ok {
		se = errors.Wrap(err, errors.SystemError, "Internal server error", 0)
	}

	status := statusFor(se.Type)
	fields := map[string]interface{}{
		"type":   string(se.Type),
		"code":   se.Code,
		"status": status,
	}
	if status >= http.StatusInternalServerError {
		fields["details"] = se.Details
		s.log.Error(se.Message, "api", fields)
	} else {
		s.log.Warn(se.Message, "api", fields)
	}

	writeJSON(w, status, ErrorResponse{
		Error:     se.Message,
		Type:      se.Type,
		Code:      se.Code,
		Details:   se.Details,
		Timestamp: se.Timestamp,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
