package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/keyvault/internal/app"
	"github.com/allisson/keyvault/internal/config"
)

func getCommands(version string) []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getSystemCommands(version)...)
	cmds = append(cmds, getKeyCommands()...)
	cmds = append(cmds, getAuthCommands()...)
	return cmds
}

// withContainer runs fn against a container built from the environment and shuts it down after.
func withContainer(ctx context.Context, fn func(container *app.Container) error) error {
	container := app.NewContainer(config.Load())
	defer func() { _ = container.Shutdown(ctx) }()
	return fn(container)
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func actorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "actor",
		Value: "cli",
		Usage: "Identity recorded in the audit log",
	}
}
