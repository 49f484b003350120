// main.go is the entrypoint for the fal.ai MCP server.
//
// The binary has two faces:
//
//   - `fal-mcp` (or `fal-mcp serve`) runs the MCP server over stdio. It is
//     designed to be spawned by an MCP client (e.g. Claude Code) and
//     communicates via JSON-RPC on stdin/stdout; all logging goes to stderr.
//   - `fal-mcp upload-worker ...` is the hidden entrypoint for detached
//     upload workers. The upload manager re-execs the running binary with
//     this subcommand so a single installed artifact serves both roles.
//
// Configuration comes from FAL_* environment variables; FAL_API_KEY is the
// only required one.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/config"
	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/falclient"
	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/logging"
	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/server"
	"github.com/raveenplgithub/pmind-fal-ai-mcp/internal/upload"
)

func main() {
	root := &cobra.Command{
		Use:           "fal-mcp",
		Short:         "MCP server for the fal.ai platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	workerCmd := &cobra.Command{
		Use:    "upload-worker",
		Short:  "Run one upload session to completion (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUploadWorker(cmd)
		},
	}
	workerCmd.Flags().String("session-id", "", "upload session id")
	workerCmd.Flags().String("source", "", "local file path or source URL")
	workerCmd.Flags().String("kind", "file", "source kind: file or url")
	workerCmd.Flags().String("state-dir", "", "upload state directory")
	for _, flag := range []string{"session-id", "source", "state-dir"} {
		if err := workerCmd.MarkFlagRequired(flag); err != nil {
			panic(err)
		}
	}

	root.AddCommand(serveCmd, workerCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fal-mcp: %v\n", err)
		os.Exit(1)
	}
}

// runServe starts the MCP server and blocks until the client disconnects.
func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	client := falclient.New(cfg, log)
	s, err := server.New(cfg, client, log)
	if err != nil {
		return err
	}

	log.Info("fal.ai MCP server starting",
		"state_dir", cfg.UploadStateDir,
		"cache_dir", cfg.CacheDir,
	)

	// Blocks until the stdio transport closes (the MCP session ends).
	// Detached upload workers keep running; their state is on disk.
	return s.Run(ctx, &mcp.StdioTransport{})
}

// runUploadWorker performs exactly one upload session and exits. It writes
// a terminal state to the session record on every exit path.
func runUploadWorker(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	sessionID, _ := cmd.Flags().GetString("session-id")
	source, _ := cmd.Flags().GetString("source")
	kind, _ := cmd.Flags().GetString("kind")
	stateDir, _ := cmd.Flags().GetString("state-dir")

	sourceKind := upload.SourceKind(kind)
	if sourceKind != upload.SourceFile && sourceKind != upload.SourceURL {
		return fmt.Errorf("invalid source kind %q", kind)
	}

	store, err := upload.NewStore(stateDir)
	if err != nil {
		return err
	}

	client := falclient.New(cfg, log)
	worker := upload.NewWorker(sessionID, source, sourceKind, store, client, log)
	worker.Run(cmd.Context())
	return nil
}
