package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/berth-ops/notify-api/pkg/errors"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 64 * 1024
	maxRetryAfterWait  = 5 * time.Second
)

// NewHTTPClient returns the client shared by all HTTP-based adapters.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// postJSON sends a JSON payload and returns the response with its body
// drained, so callers can classify the status without touching the body
// stream themselves.
func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}, headers map[string]string) (*http.Response, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, apperrors.NewInternal(fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, nil, apperrors.NewInternal(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, apperrors.NewDelivery(Redact(fmt.Sprintf("request failed: %v", err)), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp, nil, apperrors.NewDelivery(fmt.Sprintf("failed to read response: %v", err), err)
	}
	return resp, body, nil
}

// retryAfterHeader parses the seconds form of a Retry-After header. Zero
// means no usable hint.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// waitRetryAfter honors a provider's rate-limit hint before handing the
// failure back to the retry loop. The wait is capped so a hostile hint
// cannot stall a dispatch worker.
func waitRetryAfter(ctx context.Context, hint time.Duration) {
	if hint <= 0 {
		return
	}
	if hint > maxRetryAfterWait {
		hint = maxRetryAfterWait
	}
	select {
	case <-ctx.Done():
	case <-time.After(hint):
	}
}
