package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var requestsCommand = &cli.Command{
	Name:  "requests",
	Usage: "Manage your service requests",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "List your service requests",
			Flags:  []cli.Flag{cliFlagOutput},
			Action: requestsList,
		},
		{
			Name:      "withdraw",
			Usage:     "Withdraw a request that is still pending approval",
			ArgsUsage: "REQUEST_ID",
			Action:    requestsWithdraw,
		},
		{
			Name:      "report",
			Usage:     "Download the report of a completed request",
			ArgsUsage: "REQUEST_ID",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagOut,
					Usage: "Write the report to this file; defaults to the report's own name",
				},
			},
			Action: requestsReport,
		},
	},
}

func requestsList(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("requests list requires no arguments")
	}
	output := c.String(flagOutput)
	if err := validateOutputFormat(output); err != nil {
		return err
	}

	p, err := requireLogin(c)
	if err != nil {
		return err
	}
	list, err := p.client.ListServiceRequests(c.Context)
	if err != nil {
		return apiError(err, "listing service requests")
	}

	if len(list) == 0 {
		fmt.Fprintln(c.App.Writer, "No service requests found.")
		return nil
	}

	switch strings.ToLower(output) {
	case "table":
		now := time.Now()
		table := uitable.New()
		table.AddRow("ID", "SERVICE", "STATUS", "REQUESTED", "NEXT STEP")
		for i := range list {
			req := &list[i]
			table.AddRow(req.ID, req.ServiceName, req.Status.Label(), req.RequestDate.Local().Format("2006-01-02 15:04"), nextStep(req, now))
		}
		fmt.Fprintln(c.App.Writer, table)

	case "json":
		return printJSON(c.App.Writer, list)
	}
	return nil
}

// nextStep names what the client can do with a request right now
func nextStep(req *servicerequests.Request, now time.Time) string {
	switch {
	case req.CanWithdraw():
		return "withdraw"
	case req.CanPay(now):
		return fmt.Sprintf("pay in the portal (%s left)", req.PaymentTimeLeft(now))
	case req.HasReport():
		return "download report"
	default:
		return ""
	}
}

func requestID(c *cli.Context) (int64, error) {
	if c.Args().Len() != 1 {
		return 0, errors.Errorf("%s requires one argument-- a request ID", c.Command.FullName())
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid request ID %q", c.Args().First())
	}
	return id, nil
}

func requestsWithdraw(c *cli.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	p, err := requireLogin(c)
	if err != nil {
		return err
	}
	if err := p.client.WithdrawServiceRequest(c.Context, id); err != nil {
		return apiError(err, "withdrawing request")
	}
	fmt.Fprintf(c.App.Writer, "Request %d withdrawn.\n", id)
	return nil
}

func requestsReport(c *cli.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	p, err := requireLogin(c)
	if err != nil {
		return err
	}

	list, err := p.client.ListServiceRequests(c.Context)
	if err != nil {
		return apiError(err, "listing service requests")
	}
	var req *servicerequests.Request
	for i := range list {
		if list[i].ID == id {
			req = &list[i]
		}
	}
	if req == nil || !req.HasReport() {
		return errors.Errorf("no report is available for request %d", id)
	}

	report, err := p.client.DownloadReport(c.Context, req)
	if err != nil {
		return apiError(err, "downloading report")
	}
	out := c.String(flagOut)
	if out == "" {
		out = filepath.Base(report.FileName)
	}
	if err := os.WriteFile(out, report.Data, 0o600); err != nil {
		return errors.Wrapf(err, "error writing report to %s", out)
	}
	fmt.Fprintf(c.App.Writer, "Report saved to %s.\n", out)
	return nil
}
