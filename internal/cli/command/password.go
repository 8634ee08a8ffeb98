package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/routemesh-go/internal/auth"
)

// HashPasswordCommand returns the hash-password command.
func HashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Print the argon2id hash of a password read from stdin",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "password",
				Usage: "Password (visible in the process list)",
			},
		},
		Action: hashPassword,
	}
}

func hashPassword(c *cli.Context) error {
	password := c.String("password")
	if password == "" {
		var err error
		if password, err = readStdinLine(c); err != nil {
			return err
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, hash)
	return nil
}
