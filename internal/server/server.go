// server.go assembles the MCP server: shared state, tool registrations,
// and the stdio run loop. The SDK auto-generates JSON Schema for each tool
// from the struct tags on the arg/output types in types.go.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/config"
	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/falclient"
	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/upload"
)

// serverVersion is reported to the MCP client during initialization.
const serverVersion = "1.0.0"

// Backend is the slice of the fal client the tool handlers use. Defined as
// an interface so tests can inject a mock.
type Backend interface {
	ListModels(ctx context.Context, page, total *int) (any, error)
	SearchModels(ctx context.Context, keywords string) (any, error)
	FetchOpenAPISchema(ctx context.Context, modelID string) (map[string]any, error)
	Submit(ctx context.Context, modelID string, arguments map[string]any, opts falclient.SubmitOptions) (*falclient.QueueHandle, error)
	Subscribe(ctx context.Context, modelID string, arguments map[string]any, opts falclient.SubmitOptions) (any, error)
	Run(ctx context.Context, modelID string, arguments map[string]any, subPath string, timeout time.Duration, hint string) (any, error)
	Status(ctx context.Context, modelID, requestID string, withLogs bool) (map[string]any, error)
	Result(ctx context.Context, modelID, requestID string) (any, error)
	Cancel(ctx context.Context, modelID, requestID string) (any, error)
	DownloadFile(ctx context.Context, rawURL, filename, dir string) (*falclient.DownloadInfo, error)
}

// ToolHandlers holds the shared state every tool handler needs.
type ToolHandlers struct {
	backend Backend
	manager *upload.Manager
	schemas *schemaCache
	tracker *requestTracker
	log     *slog.Logger
}

// New wires up the full MCP server over the given backend client.
func New(cfg *config.Config, backend Backend, log *slog.Logger) (*mcp.Server, error) {
	store, err := upload.NewStore(cfg.UploadStateDir)
	if err != nil {
		return nil, err
	}
	manager := upload.NewManager(store, upload.NewSupervisor(), cfg.MaxActiveUploads, log)

	schemas, err := newSchemaCache(backend, cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	handlers := &ToolHandlers{
		backend: backend,
		manager: manager,
		schemas: schemas,
		tracker: newRequestTracker(),
		log:     log,
	}

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "fal-mcp",
		Version: serverVersion,
	}, &mcp.ServerOptions{
		Instructions: serverInstructions,
	})
	registerTools(s, handlers)
	return s, nil
}

// registerTools attaches every tool to the server. Split out so tests can
// register handlers built around mocks.
func registerTools(s *mcp.Server, handlers *ToolHandlers) {
	// Model discovery and inference.
	mcp.AddTool(s, &mcp.Tool{
		Name: "list_models",
		Description: "List available fal.ai models with pagination. " +
			"Returns the raw catalog payload including model ids, names and descriptions. " +
			"Use search_models to narrow by keywords instead of paging through everything.",
	}, handlers.handleListModels)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "search_models",
		Description: "Search fal.ai models by keywords (e.g. 'text to image', 'video upscale'). Returns matching models from the catalog.",
	}, handlers.handleSearchModels)

	mcp.AddTool(s, &mcp.Tool{
		Name: "get_model_schema",
		Description: "Get the OpenAPI schema for any fal.ai model. Use this before run_model to see which parameters the model accepts " +
			"and which are required. Schemas are cached in memory and on disk.",
	}, handlers.handleGetModelSchema)

	mcp.AddTool(s, &mcp.Tool{
		Name: "run_model",
		Description: "Run any fal.ai model. Required parameters are checked against the model's schema before dispatch. " +
			"mode=submit (default) enqueues the job and returns a request_id for polling with check_queue_status. " +
			"mode=subscribe submits and waits for the result. mode=run executes synchronously. " +
			"Prefer submit for anything slow — it frees you to do other work while the job runs.",
	}, handlers.handleRunModel)

	// Queue management.
	mcp.AddTool(s, &mcp.Tool{
		Name: "check_queue_status",
		Description: "Check the status of an async job submitted via run_model (IN_QUEUE, IN_PROGRESS, COMPLETED). " +
			"Set with_logs to include execution logs. Cheap to call, but don't over-poll.",
	}, handlers.handleCheckQueueStatus)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_queue_result",
		Description: "Get the result payload of a completed async job. Call once check_queue_status reports COMPLETED.",
	}, handlers.handleGetQueueResult)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cancel_queue_request",
		Description: "Cancel a queued or running async job.",
	}, handlers.handleCancelQueueRequest)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_queue_requests",
		Description: "List async jobs submitted during this session with their last known status.",
	}, handlers.handleListQueueRequests)

	// File management.
	mcp.AddTool(s, &mcp.Tool{
		Name: "upload_file",
		Description: "Upload a local file (max 10 MiB) to fal.ai storage. Returns immediately with a session_id — " +
			"the upload runs in a detached background process that survives server restarts. " +
			"Poll check_upload_status, then fetch the URL with get_upload_result.",
	}, handlers.handleUploadFile)

	mcp.AddTool(s, &mcp.Tool{
		Name: "upload_from_url",
		Description: "Download a file from a URL and upload it to fal.ai storage. Returns immediately with a session_id " +
			"for tracking, like upload_file.",
	}, handlers.handleUploadFromURL)

	mcp.AddTool(s, &mcp.Tool{
		Name: "check_upload_status",
		Description: "Check an upload session's progress: status (starting/downloading/uploading/completed/failed/cancelled), " +
			"progress fraction, retry count and any error. Also detects workers that died without reporting.",
	}, handlers.handleCheckUploadStatus)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_upload_result",
		Description: "Get the storage URL of a completed upload. Reports a clear error for failed, cancelled, or still-running sessions.",
	}, handlers.handleGetUploadResult)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cancel_upload",
		Description: "Cancel an active upload. The background worker is terminated gracefully, then forcibly after a short grace period.",
	}, handlers.handleCancelUpload)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_uploads",
		Description: "List upload sessions, newest first. Set active_only to see only uploads still in progress.",
	}, handlers.handleListUploads)

	mcp.AddTool(s, &mcp.Tool{
		Name: "cleanup_old_uploads",
		Description: "Delete state files of finished uploads older than max_age_hours (default 24) and any corrupt state files. " +
			"Active uploads are never removed.",
	}, handlers.handleCleanupOldUploads)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "download_file",
		Description: "Download a file from a URL (e.g. a generated image) to the local filesystem.",
	}, handlers.handleDownloadFile)
}
