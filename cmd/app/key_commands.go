package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/keyvault/cmd/app/commands"
	"github.com/allisson/keyvault/internal/app"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "rotate-secret",
			Usage: "Rotate a secret now, or every due rotation schedule when --path is omitted",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "path",
					Aliases: []string{"p"},
					Usage:   "Secret path",
				},
				actorFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					rotations, err := container.SecretRotationUseCase()
					if err != nil {
						return err
					}
					return commands.RunRotateSecret(ctx, rotations, container.Logger(), commands.DefaultIO().Writer,
						cmd.String("path"), cmd.String("actor"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "rotate-dek",
			Usage: "Create a new data encryption key version for a purpose",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "purpose",
					Required: true,
					Usage:    "DEK purpose (e.g. pii, payment)",
				},
				actorFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					rotator, err := container.DekRotationUseCase()
					if err != nil {
						return err
					}
					return commands.RunRotateDek(ctx, rotator, container.Logger(), commands.DefaultIO().Writer,
						cmd.String("purpose"), cmd.String("actor"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "reencrypt",
			Usage: "Re-encrypt stored fields with the current DEK version",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "table",
					Usage: "Only sweep one table",
				},
				&cli.StringFlag{
					Name:     "purpose",
					Required: true,
					Usage:    "DEK purpose",
				},
				&cli.IntFlag{
					Name:  "batch-size",
					Value: 100,
					Usage: "Rows per batch",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					rotator, err := container.DekRotationUseCase()
					if err != nil {
						return err
					}
					return commands.RunReEncrypt(ctx, rotator, container.Logger(), commands.DefaultIO().Writer,
						cmd.String("table"), cmd.String("purpose"), int(cmd.Int("batch-size")), cmd.String("format"))
				})
			},
		},
		{
			Name:  "rotate-db-credential",
			Usage: "Rotate the vault's own database login into the standby slot",
			Flags: []cli.Flag{
				actorFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					rotator, err := container.DbCredentialRotationUseCase()
					if err != nil {
						return err
					}
					return commands.RunRotateDbCredential(ctx, rotator, container.Logger(),
						commands.DefaultIO().Writer, cmd.String("actor"), cmd.String("format"))
				})
			},
		},
	}
}
