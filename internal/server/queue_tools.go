// queue_tools.go contains the async queue tool handlers and the in-memory
// tracker of requests submitted during this MCP session.
//
// The tracker is deliberately not durable: queue requests live on the
// platform and can be polled by id after a restart; the tracker only powers
// the list_queue_requests convenience view.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// handleCheckQueueStatus polls an async job's status.
func (h *ToolHandlers) handleCheckQueueStatus(ctx context.Context, _ *mcp.CallToolRequest, args CheckQueueStatusArgs) (*mcp.CallToolResult, CheckQueueStatusOutput, error) {
	if args.ModelID == "" || args.RequestID == "" {
		return nil, CheckQueueStatusOutput{}, fmt.Errorf("model_id and request_id are required")
	}

	status, err := h.backend.Status(ctx, args.ModelID, args.RequestID, args.WithLogs)
	if err != nil {
		return nil, CheckQueueStatusOutput{}, err
	}

	out := CheckQueueStatusOutput{RequestID: args.RequestID}
	if s, ok := status["status"].(string); ok {
		out.Status = s
		h.tracker.SetStatus(args.RequestID, s)
	}
	if logs, ok := status["logs"]; ok && logs != nil {
		out.Logs = logs
	}
	return nil, out, nil
}

// handleGetQueueResult fetches a completed job's payload and drops it from
// the session tracker.
func (h *ToolHandlers) handleGetQueueResult(ctx context.Context, _ *mcp.CallToolRequest, args GetQueueResultArgs) (*mcp.CallToolResult, GetQueueResultOutput, error) {
	if args.ModelID == "" || args.RequestID == "" {
		return nil, GetQueueResultOutput{}, fmt.Errorf("model_id and request_id are required")
	}

	result, err := h.backend.Result(ctx, args.ModelID, args.RequestID)
	if err != nil {
		return nil, GetQueueResultOutput{}, err
	}
	h.tracker.Remove(args.RequestID)
	return nil, GetQueueResultOutput{Result: result}, nil
}

// handleCancelQueueRequest cancels a queued or running job.
func (h *ToolHandlers) handleCancelQueueRequest(ctx context.Context, _ *mcp.CallToolRequest, args CancelQueueRequestArgs) (*mcp.CallToolResult, CancelQueueRequestOutput, error) {
	if args.ModelID == "" || args.RequestID == "" {
		return nil, CancelQueueRequestOutput{}, fmt.Errorf("model_id and request_id are required")
	}

	result, err := h.backend.Cancel(ctx, args.ModelID, args.RequestID)
	if err != nil {
		return nil, CancelQueueRequestOutput{}, err
	}
	h.tracker.SetStatus(args.RequestID, "cancelled")
	return nil, CancelQueueRequestOutput{Result: result}, nil
}

// handleListQueueRequests lists the requests submitted in this session.
func (h *ToolHandlers) handleListQueueRequests(_ context.Context, _ *mcp.CallToolRequest, _ ListQueueRequestsArgs) (*mcp.CallToolResult, ListQueueRequestsOutput, error) {
	requests := h.tracker.List()
	return nil, ListQueueRequestsOutput{ActiveRequests: requests, Count: len(requests)}, nil
}

// ---------------------------------------------------------------------------
// Request tracker
// ---------------------------------------------------------------------------

type trackedRequest struct {
	requestID   string
	modelID     string
	status      string
	submittedAt time.Time
	lastChecked time.Time
}

// requestTracker remembers async requests submitted during this session.
type requestTracker struct {
	mu       sync.Mutex
	requests map[string]*trackedRequest
}

func newRequestTracker() *requestTracker {
	return &requestTracker{requests: make(map[string]*trackedRequest)}
}

// Add registers a freshly submitted request.
func (t *requestTracker) Add(requestID, modelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests[requestID] = &trackedRequest{
		requestID:   requestID,
		modelID:     modelID,
		status:      "submitted",
		submittedAt: time.Now().UTC(),
	}
}

// SetStatus records the latest observed status for a tracked request.
// Unknown request ids are ignored.
func (t *requestTracker) SetStatus(requestID, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if req, ok := t.requests[requestID]; ok {
		req.status = status
		req.lastChecked = time.Now().UTC()
	}
}

// Remove forgets a request, typically after its result was retrieved.
func (t *requestTracker) Remove(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.requests, requestID)
}

// List returns tracked requests, newest first.
func (t *requestTracker) List() []TrackedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TrackedRequest, 0, len(t.requests))
	for _, req := range t.requests {
		entry := TrackedRequest{
			RequestID:   req.requestID,
			ModelID:     req.modelID,
			Status:      req.status,
			SubmittedAt: req.submittedAt.Format(time.RFC3339),
		}
		if !req.lastChecked.IsZero() {
			entry.LastChecked = req.lastChecked.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt > out[j].SubmittedAt
	})
	return out
}
