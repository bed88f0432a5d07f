// Package client talks to a running rtsp2hls server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heyjunin/rtsp2hls/pkg/api"
	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/progress"
)

// Options represents configuration options for the Client.
type Options struct {
	// BaseURL is the server address, e.g. http://localhost:5000.
	BaseURL string
	// Timeout bounds each request. Start blocks for the encoder liveness
	// check, so keep it well above that. Defaults to 30 seconds.
	Timeout time.Duration
	// Progress optionally spins while file downloads are in flight.
	Progress progress.Reporter
	Logger   logger.Logger
}

// Client calls the rtsp2hls HTTP API. Create instances using New().
type Client struct {
	http    *http.Client
	options Options
	log     logger.Logger
}

// New creates a Client.
func New(options Options) *Client {
	if options.Timeout == 0 {
		options.Timeout = 30 * time.Second
	}
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:5000"
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	return &Client{
		http:    &http.Client{Timeout: options.Timeout},
		options: options,
		log:     logger.OrDefault(options.Logger),
	}
}

// Start asks the server to convert sourceURL. With validate the server
// probes the source first.
func (c *Client) Start(ctx context.Context, sourceURL string, validate bool) (*api.StartResponse, error) {
	var resp api.StartResponse
	err := c.do(ctx, http.MethodPost, "/api/stream/start", api.StartRequest{RTSPURL: sourceURL, Validate: validate}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop stops the running conversion.
func (c *Client) Stop(ctx context.Context) (*api.StopResponse, error) {
	var resp api.StopResponse
	if err := c.do(ctx, http.MethodPost, "/api/stream/stop", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the current session status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/stream/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Probe asks the server to probe sourceURL.
func (c *Client) Probe(ctx context.Context, sourceURL string) (*api.ProbeResponse, error) {
	var resp api.ProbeResponse
	if err := c.do(ctx, http.MethodPost, "/api/stream/probe", api.ProbeRequest{RTSPURL: sourceURL}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.InvalidInput, "Failed to encode request", errors.ErrInvalidRequestBody)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.options.BaseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "Failed to create HTTP request", errors.ErrInvalidRequestBody)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("Calling server", "client", map[string]interface{}{
		"method": method,
		"url":    req.URL.String(),
	})

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrServerUnreachable), errors.ErrServerUnreachable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrServerUnreachable), errors.ErrServerUnreachable)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrUnexpectedResponse), errors.ErrUnexpectedResponse)
	}
	return nil
}

// decodeError rebuilds the server's StructuredError from an error body.
func decodeError(status int, data []byte) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return errors.New(errors.SystemError, errors.GetErrorMessage(errors.ErrUnexpectedResponse),
			fmt.Sprintf("Status: %d", status), errors.ErrUnexpectedResponse)
	}

	errType := body.Type
	if errType == "" {
		errType = errors.SystemError
	}
	se := errors.New(errType, body.Error, body.Details, body.Code)
	if body.Timestamp != "" {
		se.Timestamp = body.Timestamp
	}
	return se
}

// Download fetches a file served under /stream/ and saves it to outputPath,
// creating parent directories. Returns the output path.
func (c *Client) Download(ctx context.Context, name, outputPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output directory", errors.ErrOutputDirectoryCreationFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.options.BaseURL+"/stream/"+name, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "Failed to create HTTP request", errors.ErrInvalidRequestBody)
	}

	c.log.Info("Starting download", "client", map[string]interface{}{
		"url":  req.URL.String(),
		"path": outputPath,
	})

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrServerUnreachable), errors.ErrServerUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.SystemError, "HTTP request failed", fmt.Sprintf("Status: %s", resp.Status), errors.ErrUnexpectedResponse)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output file", errors.ErrOutputDirectoryCreationFailed)
	}
	defer file.Close()

	var reader io.Reader = resp.Body
	if c.options.Progress != nil {
		c.options.Progress.Begin("downloading", "Downloading "+name)
		reader = &progressReader{reader: resp.Body, reporter: c.options.Progress}
	}

	if _, err := io.Copy(file, reader); err != nil {
		if c.options.Progress != nil {
			c.options.Progress.Finish("failed", err.Error())
		}
		return "", errors.Wrap(err, errors.SystemError, "Failed to write file", errors.ErrUnexpectedResponse)
	}

	if c.options.Progress != nil {
		c.options.Progress.Finish("done", "Downloaded "+name)
	}

	c.log.Info("Download completed", "client", map[string]interface{}{
		"path": outputPath,
	})
	return outputPath, nil
}

// progressReader ticks the reporter on every read.
type progressReader struct {
	reader   io.Reader
	reporter progress.Reporter
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.reporter.Tick()
	}
	return n, err
}
