// model_tools.go contains the model discovery and inference tool handlers,
// plus the two-level (memory LRU + disk) OpenAPI schema cache.
//
// Handler signatures follow the official MCP SDK convention:
//
//	func(ctx, *mcp.CallToolRequest, TypedArgs) (*mcp.CallToolResult, TypedOutput, error)
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/falclient"
)

// handleRunModel dispatches an inference request in the selected mode after
// checking that every required parameter is present.
func (h *ToolHandlers) handleRunModel(ctx context.Context, _ *mcp.CallToolRequest, args RunModelArgs) (*mcp.CallToolResult, RunModelOutput, error) {
	if args.ModelID == "" {
		return nil, RunModelOutput{}, fmt.Errorf("model_id is required")
	}

	if err := h.validateParameters(ctx, args.ModelID, args.Parameters); err != nil {
		return nil, RunModelOutput{}, err
	}

	mode := args.Mode
	if mode == "" {
		mode = "submit"
	}

	opts := falclient.SubmitOptions{
		Path:       args.Path,
		WebhookURL: args.WebhookURL,
		Priority:   args.Priority,
		Hint:       args.Hint,
	}

	switch mode {
	case "submit":
		handle, err := h.backend.Submit(ctx, args.ModelID, args.Parameters, opts)
		if err != nil {
			return nil, RunModelOutput{}, err
		}
		h.tracker.Add(handle.RequestID, args.ModelID)
		return nil, RunModelOutput{
			RequestID:   handle.RequestID,
			ResponseURL: handle.ResponseURL,
			StatusURL:   handle.StatusURL,
			CancelURL:   handle.CancelURL,
		}, nil

	case "subscribe":
		resp, err := h.backend.Subscribe(ctx, args.ModelID, args.Parameters, opts)
		if err != nil {
			return nil, RunModelOutput{}, err
		}
		return nil, RunModelOutput{Response: resp}, nil

	case "run":
		var timeout time.Duration
		if args.TimeoutSeconds != nil && *args.TimeoutSeconds > 0 {
			timeout = time.Duration(*args.TimeoutSeconds * float64(time.Second))
		}
		resp, err := h.backend.Run(ctx, args.ModelID, args.Parameters, args.Path, timeout, args.Hint)
		if err != nil {
			return nil, RunModelOutput{}, err
		}
		return nil, RunModelOutput{Response: resp}, nil

	default:
		return nil, RunModelOutput{}, fmt.Errorf("unknown mode %q: want submit, subscribe, or run", mode)
	}
}

// handleListModels returns a catalog page.
func (h *ToolHandlers) handleListModels(ctx context.Context, _ *mcp.CallToolRequest, args ListModelsArgs) (*mcp.CallToolResult, ListModelsOutput, error) {
	models, err := h.backend.ListModels(ctx, args.Page, args.Total)
	if err != nil {
		return nil, ListModelsOutput{}, err
	}
	return nil, ListModelsOutput{Models: models}, nil
}

// handleSearchModels searches the catalog by keywords.
func (h *ToolHandlers) handleSearchModels(ctx context.Context, _ *mcp.CallToolRequest, args SearchModelsArgs) (*mcp.CallToolResult, SearchModelsOutput, error) {
	if args.Keywords == "" {
		return nil, SearchModelsOutput{}, fmt.Errorf("keywords is required")
	}
	models, err := h.backend.SearchModels(ctx, args.Keywords)
	if err != nil {
		return nil, SearchModelsOutput{}, err
	}
	return nil, SearchModelsOutput{Models: models}, nil
}

// handleGetModelSchema returns a model's OpenAPI document, cached.
func (h *ToolHandlers) handleGetModelSchema(ctx context.Context, _ *mcp.CallToolRequest, args GetModelSchemaArgs) (*mcp.CallToolResult, GetModelSchemaOutput, error) {
	if args.ModelID == "" {
		return nil, GetModelSchemaOutput{}, fmt.Errorf("model_id is required")
	}
	schema, err := h.schemas.Get(ctx, args.ModelID)
	if err != nil {
		return nil, GetModelSchemaOutput{}, err
	}
	return nil, GetModelSchemaOutput{Schema: schema}, nil
}

// validateParameters checks that every parameter the model's input schema
// marks required is present. Only presence is checked; type validation is
// the platform's job.
func (h *ToolHandlers) validateParameters(ctx context.Context, modelID string, params map[string]any) error {
	schema, err := h.schemas.Get(ctx, modelID)
	if err != nil {
		return err
	}
	input, err := extractInputSchema(schema)
	if err != nil {
		return err
	}

	required, _ := input["required"].([]any)
	var missing []string
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := params[name]; !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameters for %s: %s", modelID, strings.Join(missing, ", "))
	}
	return nil
}

// extractInputSchema pulls the request body schema of the main POST endpoint
// out of an OpenAPI document, resolving a top-level $ref if present.
func extractInputSchema(doc map[string]any) (map[string]any, error) {
	paths, _ := doc["paths"].(map[string]any)
	for _, raw := range paths {
		methods, _ := raw.(map[string]any)
		post, ok := methods["post"].(map[string]any)
		if !ok {
			continue
		}
		body, _ := post["requestBody"].(map[string]any)
		content, _ := body["content"].(map[string]any)
		for contentType, rawContent := range content {
			if !strings.Contains(contentType, "json") {
				continue
			}
			entry, _ := rawContent.(map[string]any)
			schema, _ := entry["schema"].(map[string]any)
			if schema == nil {
				continue
			}
			if ref, ok := schema["$ref"].(string); ok {
				return resolveSchemaRef(doc, ref)
			}
			return schema, nil
		}
	}
	return nil, fmt.Errorf("could not extract input schema from OpenAPI document")
}

// resolveSchemaRef resolves a #/components/schemas/<name> reference.
func resolveSchemaRef(doc map[string]any, ref string) (map[string]any, error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 4 || parts[0] != "#" || parts[1] != "components" || parts[2] != "schemas" {
		return nil, fmt.Errorf("unsupported schema reference %q", ref)
	}
	components, _ := doc["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)
	schema, ok := schemas[parts[3]].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema reference %q not found", ref)
	}
	return schema, nil
}

// ---------------------------------------------------------------------------
// Schema cache
// ---------------------------------------------------------------------------

// schemaFetcher is the backend slice the cache needs.
type schemaFetcher interface {
	FetchOpenAPISchema(ctx context.Context, modelID string) (map[string]any, error)
}

// schemaCache caches model OpenAPI documents in memory (LRU) and on disk.
// Model schemas change rarely; the disk layer survives restarts.
type schemaCache struct {
	fetcher schemaFetcher
	dir     string
	mem     *lru.Cache[string, map[string]any]
}

const schemaCacheSize = 128

func newSchemaCache(fetcher schemaFetcher, dir string) (*schemaCache, error) {
	mem, err := lru.New[string, map[string]any](schemaCacheSize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create schema cache dir: %w", err)
	}
	return &schemaCache{fetcher: fetcher, dir: dir, mem: mem}, nil
}

// Get returns the model's schema, checking memory, then disk, then the API.
func (c *schemaCache) Get(ctx context.Context, modelID string) (map[string]any, error) {
	if schema, ok := c.mem.Get(modelID); ok {
		return schema, nil
	}

	path := c.cachePath(modelID)
	if data, err := os.ReadFile(path); err == nil {
		var schema map[string]any
		if json.Unmarshal(data, &schema) == nil && len(schema) > 0 {
			c.mem.Add(modelID, schema)
			return schema, nil
		}
	}

	schema, err := c.fetcher.FetchOpenAPISchema(ctx, modelID)
	if err != nil {
		return nil, err
	}

	if data, err := json.MarshalIndent(schema, "", "  "); err == nil {
		// Cache write failures are not fatal; next call refetches.
		os.WriteFile(path, data, 0o644)
	}
	c.mem.Add(modelID, schema)
	return schema, nil
}

func (c *schemaCache) cachePath(modelID string) string {
	return filepath.Join(c.dir, sanitizeCacheFilename(modelID)+".json")
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// sanitizeCacheFilename makes a model id safe to use as a filename.
func sanitizeCacheFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(s) > 255 {
		s = s[:255]
	}
	return s
}
