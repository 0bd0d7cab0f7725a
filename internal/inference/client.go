package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/tphakala/camtrap-go/internal/errors"
)

// maxLineSize bounds one streamed response line. Prediction envelopes carry
// full detection lists, so lines can grow well past bufio's default.
const maxLineSize = 4 * 1024 * 1024

// Client submits prediction batches to the local inference server and decodes
// the streamed response.
type Client struct {
	BaseURL string
	Country string // optional geofencing country code propagated per instance

	httpClient *http.Client
}

// NewClient returns a client for the given server base URL. No request
// timeout is set: prediction batches have no bounded duration, cancellation
// happens through the caller's context.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Predict sends one batch of file paths and returns a lazy sequence of
// predictions decoded incrementally from the streamed response. The sequence
// is finite and not restartable; each batch issues a fresh request.
//
// A non-2xx response or transport error is fatal to the batch and yielded as
// an error. Cancelling ctx stops the underlying read promptly without
// surfacing as an error.
func (c *Client) Predict(ctx context.Context, paths []string) iter.Seq2[Prediction, error] {
	return func(yield func(Prediction, error) bool) {
		logger := getLoggerSafe("inference")

		reqBody := predictRequest{Instances: make([]instance, 0, len(paths))}
		for _, path := range paths {
			reqBody.Instances = append(reqBody.Instances, instance{Filepath: path, Country: c.Country})
		}

		payload, err := json.Marshal(&reqBody)
		if err != nil {
			yield(Prediction{}, errors.New(err).
				Component("inference").
				Category(errors.CategoryStreaming).
				Context("operation", "encode-predict-request").
				Build())
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/predict", bytes.NewReader(payload))
		if err != nil {
			yield(Prediction{}, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation is not a batch failure.
				return
			}
			yield(Prediction{}, errors.New(err).
				Component("inference").
				Category(errors.CategoryStreaming).
				Context("operation", "predict-request").
				Build())
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			yield(Prediction{}, errors.Newf("predict request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body)).
				Component("inference").
				Category(errors.CategoryStreaming).
				Context("status_code", resp.StatusCode).
				Build())
			return
		}

		for pred, err := range DecodeStream(resp.Body) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(Prediction{}, err)
				return
			}
			if !yield(pred, nil) {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		logger.Debug("prediction batch stream complete", "batch_size", len(paths))
	}
}

// DecodeStream decodes newline-delimited prediction envelopes from r into a
// lazy sequence. It is transport independent so the framing can be tested
// without a live server. Partial lines are buffered across read boundaries; a
// malformed line is skipped with a warning and never aborts the stream. A
// read error terminates the sequence with that error.
func DecodeStream(r io.Reader) iter.Seq2[Prediction, error] {
	return func(yield func(Prediction, error) bool) {
		logger := getLoggerSafe("inference")

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var env envelope
			if err := json.Unmarshal(line, &env); err != nil {
				logger.Warn("skipping malformed prediction line",
					"error", err,
					"line_bytes", len(line))
				continue
			}

			for _, pred := range env.Output.Predictions {
				if !yield(pred, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(Prediction{}, fmt.Errorf("reading prediction stream: %w", err))
		}
	}
}
