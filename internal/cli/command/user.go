package command

import (
	"bufio"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/routemesh-go/internal/auth"
	"github.com/yndnr/routemesh-go/internal/cli/output"
	"github.com/yndnr/routemesh-go/internal/storage"
)

// UserCommand returns the user subcommand group.
func UserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage the basic-auth user database (auth.store_dir)",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a user or replace its password and roles",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "password",
						Usage: "Password (visible in the process list; prefer --password-stdin)",
					},
					&cli.BoolFlag{
						Name:  "password-stdin",
						Usage: "Read the password from the first line of stdin",
					},
					&cli.StringSliceFlag{
						Name:  "role",
						Usage: "Role granted to the user (repeatable)",
					},
				},
				Action: userAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List users",
				Action:  userList,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a user",
				ArgsUsage: "NAME",
				Action:    userRemove,
			},
		},
	}
}

// openUserStore opens the badger store named by the configuration.
func openUserStore(c *cli.Context) (storage.UserStore, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log, err := initLogger(cfg, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.StoreDir == "" {
		return nil, errors.New("auth.store_dir is not configured")
	}

	bcfg := storage.DefaultBadgerConfig(cfg.Auth.StoreDir)
	bcfg.GCInterval = 0
	if cfg.Auth.StoreEncryptionKey != "" {
		bcfg.EncryptionKey = []byte(cfg.Auth.StoreEncryptionKey)
	}
	return storage.OpenBadgerUserStore(bcfg, log)
}

// readPassword takes the password from --password or, with
// --password-stdin, from the first line of the app's reader.
func readPassword(c *cli.Context) (string, error) {
	if c.Bool("password-stdin") {
		return readStdinLine(c)
	}
	if pw := c.String("password"); pw != "" {
		return pw, nil
	}
	return "", errors.New("a password is required (--password-stdin or --password)")
}

func readStdinLine(c *cli.Context) (string, error) {
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}

func userAdd(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("user name is required")
	}
	password, err := readPassword(c)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	store, err := openUserStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	roles := slices.Compact(slices.Sorted(slices.Values(c.StringSlice("role"))))
	u := &storage.User{Name: name, PasswordHash: hash, Roles: roles}
	if err := store.Put(c.Context, u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "user %q saved\n", name)
	return nil
}

func userRemove(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("user name is required")
	}
	store, err := openUserStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(c.Context, name); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "user %q removed\n", name)
	return nil
}

func userList(c *cli.Context) error {
	store, err := openUserStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.List(c.Context)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	list := make(userListView, 0, len(users))
	for _, u := range users {
		list = append(list, userView{
			Name:      u.Name,
			Roles:     u.Roles,
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
		})
	}
	return printResult(c, list)
}

// userView is a user without its password hash.
type userView struct {
	Name      string    `json:"name" yaml:"name"`
	Roles     []string  `json:"roles" yaml:"roles"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

type userListView []userView

// Table implements output.Tabular.
func (l userListView) Table() *output.Table {
	t := output.NewTable("NAME", "ROLES", "CREATED", "UPDATED")
	for _, u := range l {
		t.AddRow(u.Name, strings.Join(u.Roles, ","),
			u.CreatedAt.Format(time.DateTime), u.UpdatedAt.Format(time.DateTime))
	}
	return t
}
