package main

import "github.com/urfave/cli/v2"

const (
	flagAdmin    = "admin"
	flagEmail    = "email"
	flagHome     = "home"
	flagOut      = "out"
	flagOutput   = "output"
	flagPassword = "password"
	flagServer   = "server"
	flagVerbose  = "verbose"
)

var cliFlagOutput = &cli.StringFlag{
	Name:    flagOutput,
	Aliases: []string{"o"},
	Usage:   "Return output in the specified format; supported formats: table, json",
	Value:   "table",
}
