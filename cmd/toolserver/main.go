package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/agent"
	"github.com/carebridge/carebridge/internal/mcp"
)

const version = "0.1.0"

// toolserver exposes billing tools over MCP stdio so the main server
// can attach them as remote agent tools.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := mcp.NewServer(version, agent.NewVisitCostTool())
	if err != nil {
		logutil.GetLogger(ctx).Fatal("build tool server failed", zap.Error(err))
	}
	if err := mcp.Run(ctx, server); err != nil && ctx.Err() == nil {
		logutil.GetLogger(context.Background()).Fatal("tool server exited", zap.Error(err))
	}
}
