// file_tools.go contains the upload and download tool handlers. The upload
// tools are a thin shell over the upload manager: they translate between
// MCP argument structs and manager calls, and map the manager's sentinel
// errors onto user-facing messages.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/upload"
)

// handleUploadFile starts a background upload of a local file. Returns
// immediately with a session id; the work happens in a detached worker.
func (h *ToolHandlers) handleUploadFile(_ context.Context, _ *mcp.CallToolRequest, args UploadFileArgs) (*mcp.CallToolResult, StartUploadOutput, error) {
	if args.FilePath == "" {
		return nil, StartUploadOutput{}, fmt.Errorf("file_path is required")
	}
	res, err := h.manager.StartUpload(args.FilePath, upload.SourceFile)
	if err != nil {
		return nil, StartUploadOutput{}, err
	}
	return nil, StartUploadOutput{
		SessionID:                res.SessionID,
		Status:                   "started",
		SizeBytes:                res.SizeBytes,
		EstimatedDurationSeconds: res.EstimatedSeconds,
	}, nil
}

// handleUploadFromURL starts a background fetch-then-upload of a URL.
func (h *ToolHandlers) handleUploadFromURL(_ context.Context, _ *mcp.CallToolRequest, args UploadFromURLArgs) (*mcp.CallToolResult, StartUploadOutput, error) {
	if args.URL == "" {
		return nil, StartUploadOutput{}, fmt.Errorf("url is required")
	}
	res, err := h.manager.StartUpload(args.URL, upload.SourceURL)
	if err != nil {
		return nil, StartUploadOutput{}, err
	}
	return nil, StartUploadOutput{
		SessionID:                res.SessionID,
		Status:                   "started",
		SizeBytes:                res.SizeBytes,
		EstimatedDurationSeconds: res.EstimatedSeconds,
	}, nil
}

// handleCheckUploadStatus returns a session's current state, reconciling
// dead workers along the way.
func (h *ToolHandlers) handleCheckUploadStatus(_ context.Context, _ *mcp.CallToolRequest, args CheckUploadStatusArgs) (*mcp.CallToolResult, UploadStatus, error) {
	sess, err := h.manager.GetStatus(args.SessionID)
	if err != nil {
		return nil, UploadStatus{}, err
	}
	return nil, sessionStatus(sess), nil
}

// handleGetUploadResult returns the uploaded file's URL once the session
// has completed. Failed, cancelled, and still-running sessions report
// distinct errors.
func (h *ToolHandlers) handleGetUploadResult(_ context.Context, _ *mcp.CallToolRequest, args GetUploadResultArgs) (*mcp.CallToolResult, GetUploadResultOutput, error) {
	sess, err := h.manager.Result(args.SessionID)
	if err != nil {
		if errors.Is(err, upload.ErrNotFinished) {
			// Tell the caller what to do next instead of just erroring.
			return nil, GetUploadResultOutput{}, fmt.Errorf("%v; poll check_upload_status until it completes", err)
		}
		return nil, GetUploadResultOutput{}, err
	}
	return nil, GetUploadResultOutput{
		SessionID: sess.SessionID,
		URL:       sess.ResultURL,
		SizeBytes: sess.SizeBytes,
	}, nil
}

// handleCancelUpload cancels an active upload, terminating its worker.
func (h *ToolHandlers) handleCancelUpload(_ context.Context, _ *mcp.CallToolRequest, args CancelUploadArgs) (*mcp.CallToolResult, CancelUploadOutput, error) {
	outcome, err := h.manager.Cancel(args.SessionID)
	if err != nil {
		return nil, CancelUploadOutput{}, err
	}
	return nil, CancelUploadOutput{SessionID: args.SessionID, Status: string(outcome)}, nil
}

// handleListUploads lists upload sessions, newest first.
func (h *ToolHandlers) handleListUploads(_ context.Context, _ *mcp.CallToolRequest, args ListUploadsArgs) (*mcp.CallToolResult, ListUploadsOutput, error) {
	sessions := h.manager.List(args.ActiveOnly)
	uploads := make([]UploadStatus, 0, len(sessions))
	for _, sess := range sessions {
		uploads = append(uploads, sessionStatus(sess))
	}
	return nil, ListUploadsOutput{
		Uploads:    uploads,
		TotalCount: len(uploads),
		ActiveOnly: args.ActiveOnly,
	}, nil
}

// handleCleanupOldUploads removes finished sessions older than the cutoff
// plus any corrupt state files.
func (h *ToolHandlers) handleCleanupOldUploads(_ context.Context, _ *mcp.CallToolRequest, args CleanupOldUploadsArgs) (*mcp.CallToolResult, CleanupOldUploadsOutput, error) {
	hours := 24
	if args.MaxAgeHours != nil {
		if *args.MaxAgeHours < 0 {
			return nil, CleanupOldUploadsOutput{}, fmt.Errorf("max_age_hours must be >= 0")
		}
		hours = *args.MaxAgeHours
	}
	cleaned := h.manager.Cleanup(time.Duration(hours) * time.Hour)
	return nil, CleanupOldUploadsOutput{CleanedCount: cleaned, MaxAgeHours: hours}, nil
}

// handleDownloadFile downloads a URL to the local filesystem.
func (h *ToolHandlers) handleDownloadFile(ctx context.Context, _ *mcp.CallToolRequest, args DownloadFileArgs) (*mcp.CallToolResult, DownloadFileOutput, error) {
	if args.URL == "" {
		return nil, DownloadFileOutput{}, fmt.Errorf("url is required")
	}
	info, err := h.backend.DownloadFile(ctx, args.URL, args.Filename, args.DownloadDir)
	if err != nil {
		return nil, DownloadFileOutput{}, err
	}
	return nil, DownloadFileOutput{
		Filename:    info.Filename,
		FilePath:    info.FilePath,
		SizeBytes:   info.SizeBytes,
		DownloadDir: info.DownloadDir,
		URL:         info.URL,
	}, nil
}

// sessionStatus converts a session record to its public view.
func sessionStatus(sess *upload.Session) UploadStatus {
	return UploadStatus{
		SessionID:  sess.SessionID,
		Status:     string(sess.Status),
		Progress:   sess.Progress,
		SizeBytes:  sess.SizeBytes,
		Error:      sess.Error,
		ErrorKind:  string(sess.ErrorKind),
		ResultURL:  sess.ResultURL,
		CreatedAt:  sess.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  sess.UpdatedAt.Format(time.RFC3339),
		RetryCount: sess.RetryCount,
	}
}
