package main

import (
	"path/filepath"

	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/tokens/filebackend"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// portal is the process wide session: one client and one provider over a saved token store
type portal struct {
	client   *apiclient.Client
	provider *session.Provider
}

// getPortal wires the saved session and restores it. Every command runs after the restore has
// settled, so none of them observes a loading session.
func getPortal(c *cli.Context) (*portal, error) {
	home, err := getPortalHome(c)
	if err != nil {
		return nil, errors.Wrap(err, "error finding portalctl home")
	}
	backend, err := filebackend.New(home)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening session store at %s", home)
	}

	store := tokens.NewStore(backend)
	client, err := apiclient.New(c.String(flagServer), store)
	if err != nil {
		return nil, errors.Wrap(err, "error creating api client")
	}
	provider := session.New(store, client)
	client.Subscribe(provider)
	provider.Restore(c.Context)

	return &portal{client: client, provider: provider}, nil
}

// requireLogin returns the restored portal only when it holds a signed in user
func requireLogin(c *cli.Context) (*portal, error) {
	p, err := getPortal(c)
	if err != nil {
		return nil, err
	}
	if !p.provider.State().Authenticated() {
		return nil, errors.New("you are not logged in; please use `portalctl login` to continue")
	}
	return p, nil
}

func getPortalHome(c *cli.Context) (string, error) {
	if home := c.String(flagHome); home != "" {
		return home, nil
	}
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "error locating user's home directory")
	}
	return filepath.Join(homeDir, ".secportal"), nil
}

// apiError turns a failed call into the message a user should read
func apiError(err error, action string) error {
	var expired *apiclient.SessionExpiredError
	if errors.As(err, &expired) {
		return errors.New("your session has expired; please use `portalctl login` to continue")
	}
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return errors.New(authErr.Message())
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return errors.Errorf("error %s: %s", action, apiErr.Detail)
	}
	return errors.Wrapf(err, "error %s", action)
}
