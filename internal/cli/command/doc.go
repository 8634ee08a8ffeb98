// Package command defines the routemesh-server command line.
//
// The root command serves HTTP by default. Subcommands validate the
// configuration, manage the basic-auth user database, hash passwords and
// issue bearer tokens.
package command
