package cmd

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/logger"
	"github.com/spigell/career-assistant/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant as MCP tools over stdio",
	Run: func(_ *cobra.Command, _ []string) {
		runMCP()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol, so logs go to stderr.
	log, err := logger.New(true, viper.GetBool("debug"), logger.WithOutputs("stderr"))
	if err != nil {
		stdlog.Fatalf("creating a logger: %s", err)
	}
	config, err := getConfig()
	if err != nil {
		log.Fatal("getting a config", zap.Error(err))
	}

	c, err := buildComponents(ctx, config, log)
	if err != nil {
		log.Fatal("building components", zap.Error(err))
	}
	defer c.Close()

	if err := mcpserver.New(version, c.mcpTools(), log).Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("mcp server stopped", zap.Error(err))
	}
}
