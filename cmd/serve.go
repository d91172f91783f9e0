package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramdb/engram/pkg/tools"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory tools over MCP stdio",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			log.Info("serving MCP tools",
				"backend", viper.GetString("backend.type"),
				"embedding", viper.GetString("embedding.provider"),
			)

			s := server.NewMCPServer(
				projectName,
				version,
				server.WithLogging(),
			)

			registry := &tools.Registry{
				Store: svc.store,
				Index: svc.index,
				Graph: svc.graph,
				Bus:   svc.bus,
			}
			registry.Register(s)

			return server.ServeStdio(s)
		},
	}
)

const version = "0.1.0"

func init() {
	rootCmd.AddCommand(serveCmd)
}

var longServe = `
Serve exposes every memory operation as an MCP tool over stdio: remember,
recall, forget, get_memories, backfill_embeddings, memory_stats, the graph
tools, and the handoff bus. Point any MCP-capable agent client at the
binary and it gains persistent memory.
`
