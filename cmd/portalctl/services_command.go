package main

import (
	"fmt"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var servicesCommand = &cli.Command{
	Name:  "services",
	Usage: "Browse the service catalogue",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "List the services that can be requested",
			Flags:  []cli.Flag{cliFlagOutput},
			Action: servicesList,
		},
	},
}

func servicesList(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("services list requires no arguments")
	}
	output := c.String(flagOutput)
	if err := validateOutputFormat(output); err != nil {
		return err
	}

	p, err := requireLogin(c)
	if err != nil {
		return err
	}
	list, err := p.client.ListServices(c.Context)
	if err != nil {
		return apiError(err, "listing services")
	}

	if len(list) == 0 {
		fmt.Fprintln(c.App.Writer, "No services found.")
		return nil
	}

	switch strings.ToLower(output) {
	case "table":
		table := uitable.New()
		table.MaxColWidth = 60
		table.AddRow("ID", "NAME", "PRICE", "DESCRIPTION")
		for _, svc := range list {
			table.AddRow(svc.ID, svc.Name, fmt.Sprintf("%.2f", svc.Price), svc.Description)
		}
		fmt.Fprintln(c.App.Writer, table)

	case "json":
		return printJSON(c.App.Writer, list)
	}
	return nil
}
