package main

import (
	"context"
	"encoding/json"
	"io"
	"org-authority-go/internal/bootstrap"
	"org-authority-go/internal/config"
	"org-authority-go/pkg/log"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "orgctl",
		Short:         "Operator tools for the organization authority service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "./configs/config.yaml", "Path to config file")

	cmd.AddCommand(
		newMigrateCmd(g),
		newSweepCmd(g),
		newResolveCmd(g),
		newHistoryCmd(g),
		newTokenCmd(g),
	)
	return cmd
}

// loadConfig 读取配置并初始化日志。命令行默认只输出警告以上级别，避免干扰 JSON 输出。
func (g *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	log.Init("warn", "console", "")
	return cfg, nil
}

func (g *globalFlags) build(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(ctx, cfg)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
