package main

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "Log in to the security portal",
	Description: "Prompts for any credential not given as a flag. The session is saved " +
		"under the portalctl home and reused by later commands.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagEmail,
			Aliases: []string{"e"},
			Usage:   "Specify the account email non-interactively",
		},
		&cli.StringFlag{
			Name:    flagPassword,
			Aliases: []string{"p"},
			Usage:   "Specify the password non-interactively",
		},
		&cli.BoolFlag{
			Name:  flagAdmin,
			Usage: "Log in through the staff entry point; refuses non-staff accounts",
		},
	},
	Action: login,
}

func login(c *cli.Context) error {
	email := c.String(flagEmail)
	password := c.String(flagPassword)

	if email == "" {
		if err := survey.AskOne(&survey.Input{Message: "Email"}, &email, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}
	if password == "" {
		if err := survey.AskOne(&survey.Password{Message: "Password"}, &password, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}

	p, err := getPortal(c)
	if err != nil {
		return err
	}

	var opts []session.LoginOption
	if c.Bool(flagAdmin) {
		opts = append(opts, session.RequireStaff())
	}
	if err := p.client.PrimeCSRF(c.Context); err != nil {
		log.Debug().Err(err).Msg("Failed to prime csrf cookie")
	}
	user, err := p.provider.SignIn(c.Context, email, password, opts...)
	if err != nil {
		return apiError(err, "logging in")
	}

	fmt.Fprintf(c.App.Writer, "You are logged in as %s (%s).\n", user.DisplayName(), user.RoleLabel())
	return nil
}

var logoutCommand = &cli.Command{
	Name:   "logout",
	Usage:  "Log out of the security portal",
	Action: logout,
}

func logout(c *cli.Context) error {
	if c.Args().Len() != 0 {
		return errors.New("logout requires no arguments")
	}

	p, err := getPortal(c)
	if err != nil {
		return err
	}
	// The backend keeps no session to revoke; forgetting the saved pair is the logout
	p.provider.Logout()

	fmt.Fprintln(c.App.Writer, "Logout was successful.")
	return nil
}

var whoamiCommand = &cli.Command{
	Name:   "whoami",
	Usage:  "Show the logged in account",
	Flags:  []cli.Flag{cliFlagOutput},
	Action: whoami,
}

func whoami(c *cli.Context) error {
	output := c.String(flagOutput)
	if err := validateOutputFormat(output); err != nil {
		return err
	}

	p, err := requireLogin(c)
	if err != nil {
		return err
	}
	user := p.provider.State().User

	if strings.ToLower(output) == "json" {
		return printJSON(c.App.Writer, user)
	}
	fmt.Fprintf(c.App.Writer, "%s <%s>\n%s\n", user.DisplayName(), user.Email, user.RoleLabel())
	return nil
}
