// Package supervisor owns the single live conversion session: it starts the
// encoder against a source URL, keeps exactly one encoder alive at a time,
// stops it on request and notices when it dies on its own.
package supervisor

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/hls"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/metrics"
	"github.com/heyjunin/rtsp2hls/pkg/monitor"
	"github.com/heyjunin/rtsp2hls/pkg/procgroup"
)

const (
	DefaultLivenessDelay       = 2 * time.Second
	DefaultGracefulStopTimeout = 5 * time.Second
	DefaultWatchdogInterval    = 5 * time.Second

	tailLines = 20
)

// DefaultAllowedSchemes are the source URL schemes accepted by Start.
var DefaultAllowedSchemes = []string{"rtsp", "rtmp"}

// CommandFactory builds the encoder command for a source. The supervisor
// sets the process group and stderr itself.
type CommandFactory func(sourceURL string, sink hls.Sink) *exec.Cmd

// Options configures a Supervisor.
type Options struct {
	Sink         hls.Sink
	FFmpegBinary string
	// AllowedSchemes lists accepted URL schemes without "://".
	AllowedSchemes      []string
	LivenessDelay       time.Duration
	GracefulStopTimeout time.Duration
	// MaxDuration stops sessions older than this. Zero disables the watchdog.
	MaxDuration       time.Duration
	WatchdogInterval  time.Duration
	HLSTime           int
	HLSListSize       int
	FFmpegExtraParams []string
	// DrainTimeout bounds the diagnostic drain after the encoder exits.
	DrainTimeout time.Duration
	// CommandFactory overrides the ffmpeg command, mainly for tests.
	CommandFactory CommandFactory
}

// StartInfo describes a session committed by Start.
type StartInfo struct {
	SessionID    string    `json:"session_id"`
	SourceURL    string    `json:"rtsp_url"`
	StartedAt    time.Time `json:"started_at"`
	PlaylistPath string    `json:"playlist_path"`
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	Running         bool                    `json:"is_running"`
	State           string                  `json:"state"`
	SourceURL       string                  `json:"rtsp_url,omitempty"`
	StartedAt       *time.Time              `json:"start_time,omitempty"`
	DurationSeconds float64                 `json:"duration"`
	ManifestExists  bool                    `json:"playlist_exists"`
	SessionID       string                  `json:"session_id,omitempty"`
	LastError       *errors.StructuredError `json:"last_error,omitempty"`
	Encoder         *ProcessStats           `json:"encoder,omitempty"`
}

type session struct {
	id        string
	sourceURL string
	startedAt time.Time
	mon       *monitor.Monitor
}

// Supervisor serializes every session transition behind one mutex. Status
// reads a separately locked snapshot so it never waits on a transition.
type Supervisor struct {
	opts Options
	log  logger.Logger

	transition sync.Mutex

	stateMu   sync.RWMutex
	state     State
	current   *session
	lastError *errors.StructuredError

	handlers  sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a Supervisor. When MaxDuration is set a watchdog goroutine runs
// until Close.
func New(opts Options, log logger.Logger) (*Supervisor, error) {
	if opts.Sink.Dir == "" {
		return nil, errors.New(errors.SystemError, "Output directory not configured", "", errors.ErrOutputDirectoryCreationFailed)
	}
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	opts.AllowedSchemes = normalizeSchemes(opts.AllowedSchemes)
	if len(opts.AllowedSchemes) == 0 {
		opts.AllowedSchemes = DefaultAllowedSchemes
	}
	if opts.LivenessDelay <= 0 {
		opts.LivenessDelay = DefaultLivenessDelay
	}
	if opts.GracefulStopTimeout <= 0 {
		opts.GracefulStopTimeout = DefaultGracefulStopTimeout
	}
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = DefaultWatchdogInterval
	}
	if opts.CommandFactory == nil {
		opts.CommandFactory = ffmpegCommand(opts)
	}

	s := &Supervisor{
		opts:   opts,
		log:    logger.OrDefault(log),
		state:  StateIdle,
		closed: make(chan struct{}),
	}

	if opts.MaxDuration > 0 {
		s.handlers.Add(1)
		go s.watchdog()
	}
	return s, nil
}

func ffmpegCommand(opts Options) CommandFactory {
	return func(sourceURL string, sink hls.Sink) *exec.Cmd {
		args := hls.BuildLiveArgs(sink, hls.LiveOptions{
			SourceURL:         sourceURL,
			SegmentDuration:   opts.HLSTime,
			ListSize:          opts.HLSListSize,
			FFmpegExtraParams: opts.FFmpegExtraParams,
		})
		return exec.Command(opts.FFmpegBinary, args...)
	}
}

// ValidateURL checks sourceURL against the allowed schemes.
func (s *Supervisor) ValidateURL(sourceURL string) error {
	return validateSourceURL(sourceURL, s.opts.AllowedSchemes)
}

// normalizeSchemes lower-cases schemes and strips a trailing "://" so
// configuration like "RTSP" or "rtsp://" matches.
func normalizeSchemes(schemes []string) []string {
	out := make([]string, 0, len(schemes))
	for _, scheme := range schemes {
		scheme = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(scheme)), "://")
		if scheme != "" {
			out = append(out, scheme)
		}
	}
	return out
}

func validateSourceURL(sourceURL string, schemes []string) error {
	if strings.TrimSpace(sourceURL) == "" {
		return errors.New(errors.InvalidInput, "RTSP URL is required", "", errors.ErrMissingSourceURL)
	}

	allowed := false
	for _, scheme := range schemes {
		if strings.HasPrefix(sourceURL, scheme+"://") {
			allowed = true
			break
		}
	}
	if !allowed {
		prefixes := make([]string, 0, len(schemes))
		for _, scheme := range schemes {
			prefixes = append(prefixes, scheme+"://")
		}
		return errors.New(errors.InvalidInput, "Invalid RTSP/RTMP URL format",
			fmt.Sprintf("expected one of %s", strings.Join(prefixes, ", ")), errors.ErrUnsupportedScheme)
	}

	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return errors.Wrap(err, errors.InvalidInput, "Malformed source URL", errors.ErrMalformedSourceURL)
	}
	return nil
}

// Start replaces any running session with an encoder reading sourceURL. It
// blocks for the liveness delay and fails if the encoder exits within it.
func (s *Supervisor) Start(sourceURL string) (StartInfo, error) {
	if err := s.ValidateURL(sourceURL); err != nil {
		metrics.EncoderStarts.WithLabelValues("invalid_input").Inc()
		return StartInfo{}, err
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	select {
	case <-s.closed:
		return StartInfo{}, errors.New(errors.SystemError, errors.GetErrorMessage(errors.ErrSupervisorClosed), "", errors.ErrSupervisorClosed)
	default:
	}

	s.stopLocked("replaced")
	s.setState(StateStarting)

	if err := s.opts.Sink.Ensure(); err != nil {
		s.setState(StateIdle)
		metrics.EncoderStarts.WithLabelValues("spawn_failed").Inc()
		return StartInfo{}, errors.Wrap(err, errors.SystemError, "Failed to create output directory", errors.ErrOutputDirectoryCreationFailed)
	}

	id := uuid.NewString()
	cmd := s.opts.CommandFactory(sourceURL, s.opts.Sink)
	procgroup.Set(cmd)

	s.log.Info("Starting encoder", "supervisor", map[string]interface{}{
		"session_id": id,
		"source_url": sourceURL,
		"command":    strings.Join(cmd.Args, " "),
	})

	mon, err := monitor.Start(cmd, monitor.Options{
		Logger:       s.log,
		DrainTimeout: s.opts.DrainTimeout,
		OnExit:       s.exitHandler(id),
	})
	if err != nil {
		s.setState(StateIdle)
		metrics.EncoderStarts.WithLabelValues("spawn_failed").Inc()
		code := errors.ErrEncoderSpawnFailed
		if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
			code = errors.ErrEncoderNotFound
		}
		startErr := errors.Wrap(err, errors.EncoderStartupFailure, errors.GetErrorMessage(code), code)
		s.recordError(startErr)
		return StartInfo{}, startErr
	}

	timer := time.NewTimer(s.opts.LivenessDelay)
	defer timer.Stop()

	select {
	case <-mon.ProcessExited():
		// Orphaned children of the encoder would hold stderr open until the
		// drain timeout; the group is still addressable after the leader exits.
		_ = procgroup.Kill(cmd)
		<-mon.Done()
		tail := mon.Tail(tailLines)
		metrics.EncoderStarts.WithLabelValues("exited_early").Inc()
		metrics.EncoderExits.WithLabelValues("startup").Inc()
		s.setState(StateIdle)

		startErr := errors.New(errors.EncoderStartupFailure,
			fmt.Sprintf("%s (exit code %d)", errors.GetErrorMessage(errors.ErrEncoderExitedEarly), mon.ExitCode()),
			strings.Join(tail, "\n"), errors.ErrEncoderExitedEarly)
		s.recordError(startErr)
		s.log.Error("Encoder exited during startup", "supervisor", map[string]interface{}{
			"session_id": id,
			"exit_code":  mon.ExitCode(),
			"stderr":     tail,
		})
		return StartInfo{}, startErr
	case <-timer.C:
	}

	sess := &session{
		id:        id,
		sourceURL: sourceURL,
		startedAt: time.Now(),
		mon:       mon,
	}

	s.stateMu.Lock()
	s.current = sess
	s.state = StateRunning
	s.lastError = nil
	s.stateMu.Unlock()

	metrics.EncoderStarts.WithLabelValues("ok").Inc()
	metrics.EncoderRunning.Set(1)
	s.log.Info("Encoder running", "supervisor", map[string]interface{}{
		"session_id": id,
		"pid":        mon.PID(),
	})

	return StartInfo{
		SessionID:    id,
		SourceURL:    sourceURL,
		StartedAt:    sess.startedAt,
		PlaylistPath: s.opts.Sink.ManifestPath(),
	}, nil
}

// Stop terminates the running session. It is a no-op when idle and returns
// only after the encoder has exited.
func (s *Supervisor) Stop() {
	s.transition.Lock()
	defer s.transition.Unlock()
	s.stopLocked("stopped")
}

// stopLocked must be called with the transition mutex held.
func (s *Supervisor) stopLocked(reason string) {
	s.stateMu.RLock()
	sess := s.current
	s.stateMu.RUnlock()
	if sess == nil {
		return
	}

	s.setState(StateStopping)
	defer func() {
		s.stateMu.Lock()
		s.current = nil
		s.state = StateIdle
		s.stateMu.Unlock()
		metrics.EncoderRunning.Set(0)
	}()

	mon := sess.mon
	mon.MarkStopping()

	fields := map[string]interface{}{
		"session_id": sess.id,
		"pid":        mon.PID(),
		"reason":     reason,
	}
	s.log.Info("Stopping encoder", "supervisor", fields)

	if err := procgroup.Terminate(mon.Cmd()); err != nil {
		s.log.Warn("Failed to signal encoder", "supervisor", map[string]interface{}{
			"session_id": sess.id,
			"error":      err.Error(),
		})
	}

	timer := time.NewTimer(s.opts.GracefulStopTimeout)
	defer timer.Stop()

	select {
	case <-mon.Done():
		metrics.EncoderExits.WithLabelValues("stopped").Inc()
	case <-timer.C:
		s.log.Warn("Encoder did not exit in time, killing", "supervisor", map[string]interface{}{
			"session_id": sess.id,
			"timeout":    s.opts.GracefulStopTimeout.String(),
		})
		if err := procgroup.Kill(mon.Cmd()); err != nil {
			s.log.Error("Failed to kill encoder", "supervisor", map[string]interface{}{
				"session_id": sess.id,
				"error":      err.Error(),
			})
		}
		<-mon.Done()
		metrics.EncoderExits.WithLabelValues("killed").Inc()
	}

	s.log.Info("Encoder stopped", "supervisor", fields)
}

// exitHandler returns the monitor callback for session id. It runs on the
// monitor goroutine, so the state change happens asynchronously under the
// transition mutex.
func (s *Supervisor) exitHandler(id string) func(error, []string, bool) {
	return func(err error, tail []string, stopping bool) {
		if stopping {
			return
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handleUnexpectedExit(id, err, tail)
		}()
	}
}

func (s *Supervisor) handleUnexpectedExit(id string, exitErr error, tail []string) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.stateMu.Lock()
	if s.current == nil || s.current.id != id {
		// Startup rollback or a newer session; nothing to do.
		s.stateMu.Unlock()
		return
	}
	sess := s.current
	s.current = nil
	s.state = StateIdle
	runtimeErr := errors.Wrap(exitErr, errors.EncoderRuntimeFailure,
		errors.GetErrorMessage(errors.ErrEncoderExitedUnexpectedly), errors.ErrEncoderExitedUnexpectedly)
	if len(tail) > 0 {
		runtimeErr.Details = strings.Join(tail, "\n")
	}
	s.lastError = runtimeErr
	s.stateMu.Unlock()

	metrics.EncoderExits.WithLabelValues("unexpected").Inc()
	metrics.EncoderRunning.Set(0)
	s.log.Error("Encoder exited unexpectedly", "supervisor", map[string]interface{}{
		"session_id": id,
		"source_url": sess.sourceURL,
		"exit_code":  sess.mon.ExitCode(),
		"uptime":     time.Since(sess.startedAt).Round(time.Millisecond).String(),
		"stderr":     tail,
	})
}

func (s *Supervisor) watchdog() {
	defer s.handlers.Done()

	ticker := time.NewTicker(s.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.enforceMaxDuration()
		}
	}
}

func (s *Supervisor) enforceMaxDuration() {
	s.stateMu.RLock()
	sess := s.current
	s.stateMu.RUnlock()
	if sess == nil || time.Since(sess.startedAt) < s.opts.MaxDuration {
		return
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	s.stateMu.RLock()
	same := s.current != nil && s.current.id == sess.id
	s.stateMu.RUnlock()
	if !same {
		return
	}

	s.log.Info("Session reached maximum duration", "supervisor", map[string]interface{}{
		"session_id":   sess.id,
		"max_duration": s.opts.MaxDuration.String(),
	})
	s.stopLocked("max_duration")
}

// Status returns a snapshot of the current session.
func (s *Supervisor) Status() Status {
	s.stateMu.RLock()
	st := Status{
		State:     s.state.String(),
		LastError: s.lastError,
	}
	sess := s.current
	running := s.state == StateRunning && sess != nil
	s.stateMu.RUnlock()

	st.ManifestExists = s.opts.Sink.ManifestExists()
	if sess == nil {
		return st
	}

	startedAt := sess.startedAt
	st.SourceURL = sess.sourceURL
	st.StartedAt = &startedAt
	st.SessionID = sess.id
	st.Running = running
	if running {
		st.DurationSeconds = time.Since(startedAt).Seconds()
		st.Encoder = collectStats(sess.mon.PID())
	}
	return st
}

// State returns the current lifecycle phase.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Sink returns the output directory the encoder writes to.
func (s *Supervisor) Sink() hls.Sink {
	return s.opts.Sink
}

// Close stops the running session and the watchdog. Start fails afterwards.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		s.transition.Lock()
		close(s.closed)
		s.stopLocked("shutdown")
		s.transition.Unlock()

		s.handlers.Wait()
	})
}

func (s *Supervisor) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Supervisor) recordError(err *errors.StructuredError) {
	s.stateMu.Lock()
	s.lastError = err
	s.stateMu.Unlock()
}
