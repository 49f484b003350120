// instructions.go contains the server instructions delivered to the client
// during MCP initialization via ServerOptions.Instructions. They teach the
// calling agent the tool surface, the async job workflow, and upload
// session etiquette.
package server

const serverInstructions = `This server gives you universal access to every fal.ai model — current and future — without hardcoded per-model support. Model capabilities are discovered dynamically through OpenAPI schemas.

## HOW THIS SERVER WORKS

A Go server sits between you and the fal.ai platform and handles everything that isn't a decision:

- **Schema discovery**: Fetches and caches each model's OpenAPI schema (memory + disk). Required parameters are validated before any request is dispatched, so you get a precise "missing required parameters" error instead of a cryptic platform failure.
- **Async queue plumbing**: Submits jobs, tracks request ids for the session, polls status, fetches results, cancels.
- **Background uploads**: File uploads run in detached worker processes with durable state on disk. They survive server restarts, retry transient failures with backoff, and can be cancelled mid-flight.
- **File movement**: Downloads generated artifacts to disk and fetches remote files for upload, so large binary content never enters your context window.

## MODEL WORKFLOW

1. Find a model: search_models with keywords, or list_models to browse.
2. Call get_model_schema to see its parameters. Required fields are listed in the schema's "required" array.
3. Call run_model:
   - mode=submit (default) for anything slow — returns a request_id immediately.
   - mode=subscribe when you want to wait inline for the result.
   - mode=run only for fast models; it blocks the tool call.
4. For submitted jobs: poll check_queue_status until COMPLETED, then get_queue_result. list_queue_requests shows everything you've submitted this session.

Don't over-poll. Image models typically take 5-30 seconds, video models minutes. Do other work between polls.

## UPLOADS

Models take URLs, not file contents. To use a local file as model input, upload it first:

1. upload_file (local path, max 10 MiB) or upload_from_url (remote file). Both return a session_id and an estimated duration immediately.
2. Poll check_upload_status. Status flows starting → downloading (URL sources only) → uploading → completed/failed/cancelled. Progress is a 0-1 fraction and only moves forward.
3. get_upload_result returns the storage URL once status is completed. Pass that URL to run_model.

Notes:
- Uploads run in detached processes. If the server restarts, sessions are still there — check_upload_status keeps working.
- Transient failures are retried up to 3 times with backoff; retry_count in the status shows how many attempts failed. A session only fails after all retries are exhausted.
- If a worker dies unexpectedly, the next check_upload_status reports status failed with error "worker died unexpectedly". Starting a fresh upload is the right response.
- cancel_upload stops an active session within a couple of seconds. Cancelling a finished session is a harmless no-op reporting "already_finished".
- cleanup_old_uploads removes finished session records older than max_age_hours (default 24). Run it occasionally in long-lived setups.

## ERROR HANDLING

- "missing required parameters for <model>" — fill the listed fields; get_model_schema shows types and descriptions.
- Upload errors carry an error_kind: timeout, network, file_not_found, file_too_large, or unknown. timeout/network failures are usually transient — retry the upload. file_too_large means the 10 MiB ceiling; compress or host the file and use upload_from_url with a URL the model can read directly.
- Queue/status errors on a request_id you didn't just make up usually mean the job expired on the platform; resubmit.

## CONFIGURATION

- FAL_API_KEY (required): fal.ai API key, from https://fal.ai/dashboard/keys
- FAL_CACHE_DIR: model schema cache location
- FAL_UPLOAD_STATE_DIR: upload session state location
- FAL_DOWNLOAD_DIR: default download destination
- FAL_MAX_ACTIVE_UPLOADS: cap on concurrent uploads (0 = unlimited)

If every call fails with an auth error, the API key is missing or wrong — tell the user.`
