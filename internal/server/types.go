// types.go defines the typed argument and output structs for every MCP
// tool. The SDK generates each tool's JSON Schema from the struct tags and
// handles marshalling in both directions.
package server

// ---------------------------------------------------------------------------
// Model tools
// ---------------------------------------------------------------------------

// RunModelArgs is the input for the run_model tool.
type RunModelArgs struct {
	ModelID string `json:"model_id" jsonschema:"Model identifier (e.g. 'fal-ai/flux/dev')"`

	// Parameters are model-specific; only required-field presence is
	// validated, against the model's OpenAPI input schema.
	Parameters map[string]any `json:"parameters" jsonschema:"Model-specific parameters. Use get_model_schema to see what a model accepts."`

	// Mode selects how the request runs:
	//   "submit"    enqueues async and returns a request handle (default)
	//   "subscribe" enqueues and waits for the result
	//   "run"       executes synchronously
	Mode string `json:"mode,omitempty" jsonschema:"Execution mode: submit (async, default), subscribe (submit and wait), run (blocking)"`

	WebhookURL     string   `json:"webhook_url,omitempty" jsonschema:"Webhook URL for async completion notification (submit mode only)"`
	Priority       *int     `json:"priority,omitempty" jsonschema:"Queue priority (submit mode only)"`
	Path           string   `json:"path,omitempty" jsonschema:"Optional subpath on the model endpoint"`
	TimeoutSeconds *float64 `json:"timeout_seconds,omitempty" jsonschema:"Request timeout in seconds (run mode only)"`
	Hint           string   `json:"hint,omitempty" jsonschema:"Optional runner hint forwarded to the platform"`
}

// RunModelOutput is returned from run_model. Submit mode fills the handle
// fields; run and subscribe modes fill Response.
type RunModelOutput struct {
	RequestID   string `json:"request_id,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
	StatusURL   string `json:"status_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
	Response    any    `json:"response,omitempty"`
}

// ListModelsArgs is the input for the list_models tool.
type ListModelsArgs struct {
	Page  *int `json:"page,omitempty" jsonschema:"Page number for pagination"`
	Total *int `json:"total,omitempty" jsonschema:"Models per page"`
}

// ListModelsOutput wraps the raw catalog payload.
type ListModelsOutput struct {
	Models any `json:"models"`
}

// SearchModelsArgs is the input for the search_models tool.
type SearchModelsArgs struct {
	Keywords string `json:"keywords" jsonschema:"Search terms to find models"`
}

// SearchModelsOutput wraps the raw search payload.
type SearchModelsOutput struct {
	Models any `json:"models"`
}

// GetModelSchemaArgs is the input for the get_model_schema tool.
type GetModelSchemaArgs struct {
	ModelID string `json:"model_id" jsonschema:"Model identifier (e.g. 'fal-ai/flux/dev')"`
}

// GetModelSchemaOutput carries the model's OpenAPI document.
type GetModelSchemaOutput struct {
	Schema map[string]any `json:"schema"`
}

// ---------------------------------------------------------------------------
// Queue tools
// ---------------------------------------------------------------------------

// CheckQueueStatusArgs is the input for the check_queue_status tool.
type CheckQueueStatusArgs struct {
	ModelID   string `json:"model_id" jsonschema:"Model identifier used for the request"`
	RequestID string `json:"request_id" jsonschema:"Request ID returned from run_model with mode=submit"`
	WithLogs  bool   `json:"with_logs,omitempty" jsonschema:"Include execution logs"`
}

// CheckQueueStatusOutput is the queue status payload.
type CheckQueueStatusOutput struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Logs      any    `json:"logs,omitempty"`
}

// GetQueueResultArgs is the input for the get_queue_result tool.
type GetQueueResultArgs struct {
	ModelID   string `json:"model_id" jsonschema:"Model identifier used for the request"`
	RequestID string `json:"request_id" jsonschema:"Request ID of the completed job"`
}

// GetQueueResultOutput wraps the completed job's payload.
type GetQueueResultOutput struct {
	Result any `json:"result"`
}

// CancelQueueRequestArgs is the input for the cancel_queue_request tool.
type CancelQueueRequestArgs struct {
	ModelID   string `json:"model_id" jsonschema:"Model identifier used for the request"`
	RequestID string `json:"request_id" jsonschema:"Request ID to cancel"`
}

// CancelQueueRequestOutput wraps the cancellation response.
type CancelQueueRequestOutput struct {
	Result any `json:"result"`
}

// ListQueueRequestsArgs is the (empty) input for list_queue_requests.
type ListQueueRequestsArgs struct{}

// TrackedRequest is one entry in the session's queue request tracker.
type TrackedRequest struct {
	RequestID   string `json:"request_id"`
	ModelID     string `json:"model_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
	LastChecked string `json:"last_checked,omitempty"`
}

// ListQueueRequestsOutput lists the requests submitted in this session.
type ListQueueRequestsOutput struct {
	ActiveRequests []TrackedRequest `json:"active_requests"`
	Count          int              `json:"count"`
}

// ---------------------------------------------------------------------------
// File tools
// ---------------------------------------------------------------------------

// UploadFileArgs is the input for the upload_file tool.
type UploadFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"Path to the local file to upload (max 10 MiB)"`
}

// UploadFromURLArgs is the input for the upload_from_url tool.
type UploadFromURLArgs struct {
	URL string `json:"url" jsonschema:"URL of the file to download and upload"`
}

// StartUploadOutput is returned synchronously from upload_file and
// upload_from_url; the actual upload runs in a detached worker process.
type StartUploadOutput struct {
	SessionID                string `json:"session_id"`
	Status                   string `json:"status"`
	SizeBytes                int64  `json:"size_bytes"`
	EstimatedDurationSeconds int    `json:"estimated_duration_seconds"`
}

// CheckUploadStatusArgs is the input for the check_upload_status tool.
type CheckUploadStatusArgs struct {
	SessionID string `json:"session_id" jsonschema:"Upload session ID returned from upload_file or upload_from_url"`
}

// UploadStatus is the public view of one upload session.
type UploadStatus struct {
	SessionID  string  `json:"session_id"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	SizeBytes  int64   `json:"size_bytes"`
	Error      string  `json:"error,omitempty"`
	ErrorKind  string  `json:"error_kind,omitempty"`
	ResultURL  string  `json:"result_url,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	RetryCount int     `json:"retry_count"`
}

// GetUploadResultArgs is the input for the get_upload_result tool.
type GetUploadResultArgs struct {
	SessionID string `json:"session_id" jsonschema:"Upload session ID for a completed upload"`
}

// GetUploadResultOutput carries the uploaded file's URL.
type GetUploadResultOutput struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
}

// CancelUploadArgs is the input for the cancel_upload tool.
type CancelUploadArgs struct {
	SessionID string `json:"session_id" jsonschema:"Upload session ID to cancel"`
}

// CancelUploadOutput reports what the cancellation did: "cancelled" or
// "already_finished".
type CancelUploadOutput struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ListUploadsArgs is the input for the list_uploads tool.
type ListUploadsArgs struct {
	ActiveOnly bool `json:"active_only,omitempty" jsonschema:"Only show uploads that are still in progress"`
}

// ListUploadsOutput lists upload sessions, newest first.
type ListUploadsOutput struct {
	Uploads    []UploadStatus `json:"uploads"`
	TotalCount int            `json:"total_count"`
	ActiveOnly bool           `json:"active_only"`
}

// CleanupOldUploadsArgs is the input for the cleanup_old_uploads tool.
type CleanupOldUploadsArgs struct {
	// MaxAgeHours defaults to 24 when omitted. 0 removes every terminal
	// session regardless of age.
	MaxAgeHours *int `json:"max_age_hours,omitempty" jsonschema:"Maximum age in hours for finished upload sessions to keep (default 24)"`
}

// CleanupOldUploadsOutput reports how many state files were removed.
type CleanupOldUploadsOutput struct {
	CleanedCount int `json:"cleaned_count"`
	MaxAgeHours  int `json:"max_age_hours"`
}

// DownloadFileArgs is the input for the download_file tool.
type DownloadFileArgs struct {
	URL         string `json:"url" jsonschema:"URL of the file to download"`
	Filename    string `json:"filename,omitempty" jsonschema:"Filename to save as (derived from the URL when omitted)"`
	DownloadDir string `json:"download_dir,omitempty" jsonschema:"Directory to download into (defaults to the configured download dir)"`
}

// DownloadFileOutput describes the completed download.
type DownloadFileOutput struct {
	Filename    string `json:"filename"`
	FilePath    string `json:"file_path"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadDir string `json:"download_dir"`
	URL         string `json:"url"`
}
