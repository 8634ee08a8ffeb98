package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/routemesh-go/internal/auth"
)

// TokenCommand returns the token subcommand group.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Bearer token utilities",
		Subcommands: []*cli.Command{
			{
				Name:      "issue",
				Usage:     "Sign a token with auth.jwt_secret",
				ArgsUsage: "SUBJECT",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "role",
						Usage: "Role claim (repeatable)",
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: time.Hour,
					},
				},
				Action: tokenIssue,
			},
		},
	}
}

func tokenIssue(c *cli.Context) error {
	subject := c.Args().First()
	if subject == "" {
		return errors.New("token subject is required")
	}
	if c.Duration("ttl") <= 0 {
		return errors.New("--ttl must be positive")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	bearer, err := auth.NewBearerAuth(auth.BearerConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.JWTIssuer,
	})
	if err != nil {
		return err
	}
	token, err := bearer.Issue(subject, c.StringSlice("role"), c.Duration("ttl"))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}
