// Package sync drains the outbox against the remote reconciliation API.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/openbursar/feesync/internal/models"
)

// Outcome classifies a remote response into the engine's handling
// categories.
type Outcome int

const (
	// OutcomeOK means the remote acknowledged the mutation.
	OutcomeOK Outcome = iota
	// OutcomeConflict means the server's version diverged; ServerData
	// carries its current record.
	OutcomeConflict
	// OutcomeRejected means the payload was refused as malformed. Permanent:
	// retrying an invalid payload wastes the retry budget.
	OutcomeRejected
	// OutcomeTransient covers network failures, 5xx and timeouts.
	OutcomeTransient
)

// RemoteResponse is the interpreted result of one reconciliation request.
type RemoteResponse struct {
	Outcome    Outcome
	StatusCode int
	ServerData json.RawMessage
	Err        error
}

// RemoteClient issues one reconciliation request per queue item. Transport
// errors are returned as err; protocol-level results land in the response.
type RemoteClient interface {
	Send(ctx context.Context, item *models.QueueItem) (*RemoteResponse, error)
}

// HTTPRemote talks to the remote API over HTTP, one logical endpoint per
// entity type. Every request carries the item's original client timestamp
// so the server can run its optimistic-concurrency check.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

// ClientTimestampHeader carries the original local mutation time.
const ClientTimestampHeader = "X-Client-Timestamp"

// NewHTTPRemote creates an HTTPRemote with a per-request timeout. The
// timeout bounds every call so a hung connection cannot stall the
// single-flight guard.
func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// endpointFor maps an entity type onto its remote endpoint. Payments and
// students have dedicated endpoints; everything else reconciles through
// settings.
func endpointFor(t models.EntityType) string {
	switch t {
	case models.EntityPayments:
		return "payments"
	case models.EntityStudents:
		return "students"
	default:
		return "settings/" + string(t)
	}
}

// Send issues the remote operation for one queue item.
func (r *HTTPRemote) Send(ctx context.Context, item *models.QueueItem) (*RemoteResponse, error) {
	var method, url string
	var body io.Reader

	endpoint := fmt.Sprintf("%s/%s", r.baseURL, endpointFor(item.EntityType))
	switch item.Operation {
	case models.OpCreate:
		method = http.MethodPost
		url = endpoint
		body = bytes.NewReader(item.Payload)
	case models.OpUpdate:
		method = http.MethodPut
		url = fmt.Sprintf("%s/%s", endpoint, item.EntityID)
		body = bytes.NewReader(item.Payload)
	case models.OpDelete:
		method = http.MethodDelete
		url = fmt.Sprintf("%s/%s", endpoint, item.EntityID)
	default:
		return nil, fmt.Errorf("unknown operation %q", item.Operation)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ClientTimestampHeader, strconv.FormatInt(item.EnqueuedAt, 10))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return interpret(resp)
}

// interpret maps an HTTP response onto the engine's outcome taxonomy.
func interpret(resp *http.Response) (*RemoteResponse, error) {
	out := &RemoteResponse{StatusCode: resp.StatusCode}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		out.Outcome = OutcomeOK
	case resp.StatusCode == http.StatusConflict:
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			out.Outcome = OutcomeTransient
			out.Err = fmt.Errorf("failed to read conflict body: %w", err)
			return out, nil
		}
		out.Outcome = OutcomeConflict
		out.ServerData = json.RawMessage(data)
	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		out.Outcome = OutcomeRejected
		out.Err = fmt.Errorf("remote rejected payload: status %d", resp.StatusCode)
	default:
		out.Outcome = OutcomeTransient
		out.Err = fmt.Errorf("remote failure: status %d", resp.StatusCode)
	}
	return out, nil
}
