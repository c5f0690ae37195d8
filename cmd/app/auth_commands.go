package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/allisson/keyvault/cmd/app/commands"
	"github.com/allisson/keyvault/internal/app"
)

func getAuthCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "seed-policies",
			Usage: "Seed zero-trust defaults and apply a YAML policy file",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "file",
					Usage: "YAML seed document (zero_trust, policies, assignments)",
				},
				actorFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					return commands.RunSeedPolicies(ctx, container, container.Logger(), commands.DefaultIO().Writer,
						cmd.String("file"), cmd.String("actor"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "create-token",
			Usage: "Issue a vault token bound to policies",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "name",
					Aliases: []string{"n"},
					Usage:   "Display name",
				},
				&cli.StringFlag{
					Name:    "policies",
					Aliases: []string{"p"},
					Usage:   "Comma-separated policy names (defaults to the default policy)",
				},
				&cli.IntFlag{
					Name:  "ttl",
					Value: 3600,
					Usage: "Lifetime in seconds, 0 for no expiry",
				},
				&cli.IntFlag{
					Name:  "num-uses",
					Usage: "Maximum uses, 0 for unlimited",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					tokens, err := container.TokenUseCase()
					if err != nil {
						return err
					}
					return commands.RunCreateToken(ctx, tokens, container.Logger(), commands.DefaultIO().Writer,
						cmd.String("name"), cmd.String("policies"), int(cmd.Int("ttl")), int(cmd.Int("num-uses")),
						cmd.String("format"))
				})
			},
		},
		{
			Name:  "issue-break-glass-code",
			Usage: "Issue a one-time code that overrides zero-trust denials",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "actor",
					Required: true,
					Usage:    "Person the code is issued to",
				},
				&cli.DurationFlag{
					Name:  "ttl",
					Value: time.Hour,
					Usage: "How long the code stays valid",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					breakGlass, err := container.BreakGlass()
					if err != nil {
						return err
					}
					return commands.RunIssueBreakGlassCode(ctx, breakGlass, container.Logger(),
						commands.DefaultIO().Writer, cmd.String("actor"), cmd.Duration("ttl"), cmd.String("format"))
				})
			},
		},
	}
}
