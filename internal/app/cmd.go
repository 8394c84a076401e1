package app

import (
	"io"

	"github.com/urfave/cli/v3"

	"github.com/hitoshi/steamctx/internal/config"
)

// コマンドとフラグの名前
const (
	CommandServe       = "serve"
	CommandHealthcheck = "healthcheck"

	flagEnvFile = "env-file"
	flagPort    = "port"
)

// NewCommand はsteamctxのコマンドラインを構成する。
// サブコマンド未指定の場合はserveとして動作する。
func NewCommand(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "steamctx",
		Usage:     "Steam library gamer context web application",
		Writer:    w,
		ErrWriter: w,
		Flags:     []cli.Flag{envFileFlag()},
		Action:    serveAction(w),
		Commands: []*cli.Command{
			{
				Name:   CommandServe,
				Usage:  "Start the HTTP server",
				Flags:  []cli.Flag{envFileFlag()},
				Action: serveAction(w),
			},
			{
				// distroless環境でのDockerヘルスチェック用。設定の読み込みは行わない。
				Name:  CommandHealthcheck,
				Usage: "Check that the local server answers /health",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagPort,
						Usage:   "Port the server listens on",
						Value:   "8080",
						Sources: cli.EnvVars("SERVER_PORT"),
					},
				},
				Action: healthcheckAction,
			},
		},
	}
}

func envFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagEnvFile,
		Usage: "Path to a .env file (environment variables take precedence)",
		Value: config.DefaultDotenvPath,
	}
}
