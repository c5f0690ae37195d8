package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/keyvault/cmd/app/commands"
	"github.com/allisson/keyvault/internal/app"
	"github.com/allisson/keyvault/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server and the maintenance worker",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
		{
			Name:  "worker",
			Usage: "Run the maintenance sweep (lease expiry, token cleanup, scheduled rotation)",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "once",
					Usage: "Run a single sweep and exit",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					maintenance, err := container.Maintenance()
					if err != nil {
						return err
					}
					if cmd.Bool("once") {
						return commands.RunSweep(ctx, maintenance, container.Logger(),
							commands.DefaultIO().Writer, cmd.String("format"))
					}
					return commands.RunWorker(ctx, maintenance, container.Logger())
				})
			},
		},
		{
			Name:  "verify-audit-logs",
			Usage: "Verify cryptographic integrity of audit logs",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "since",
					Aliases: []string{"s"},
					Usage:   "Only verify logs written since YYYY-MM-DD or YYYY-MM-DD HH:MM:SS",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					audit, err := container.AuditUseCase()
					if err != nil {
						return err
					}
					return commands.RunVerifyAuditLogs(ctx, audit, container.Logger(),
						commands.DefaultIO().Writer, cmd.String("since"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "compliance-report",
			Usage: "Score the vault against SOC2, HIPAA and GDPR controls",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "framework",
					Usage: "Only score one framework",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					compliance, err := container.ComplianceUseCase()
					if err != nil {
						return err
					}
					return commands.RunComplianceReport(ctx, compliance, container.Logger(),
						commands.DefaultIO().Writer, cmd.String("framework"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "backup",
			Usage: "Write an encrypted snapshot of secrets, policies and settings",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "out",
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "Destination file",
				},
				&cli.StringFlag{
					Name:     "passphrase",
					Required: true,
					Sources:  cli.EnvVars("BACKUP_PASSPHRASE"),
					Usage:    "Passphrase the snapshot key is derived from",
				},
				actorFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					dr, err := container.DRUseCase()
					if err != nil {
						return err
					}
					return commands.RunBackup(ctx, dr, container.Logger(), commands.DefaultIO().Writer,
						cmd.String("out"), cmd.String("passphrase"), cmd.String("actor"), cmd.String("format"))
				})
			},
		},
		{
			Name:  "restore",
			Usage: "Restore missing data from an encrypted snapshot",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "in",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Snapshot file",
				},
				&cli.StringFlag{
					Name:     "passphrase",
					Required: true,
					Sources:  cli.EnvVars("BACKUP_PASSPHRASE"),
					Usage:    "Passphrase used when the snapshot was written",
				},
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Usage:   "Only validate the snapshot",
				},
				actorFlag(),
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withContainer(ctx, func(container *app.Container) error {
					dr, err := container.DRUseCase()
					if err != nil {
						return err
					}
					return commands.RunRestore(ctx, dr, container.Logger(), commands.DefaultIO().Writer,
						cmd.String("in"), cmd.String("passphrase"), cmd.String("actor"),
						cmd.Bool("dry-run"), cmd.String("format"))
				})
			},
		},
	}
}
