package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ghcrm/internal/apitest"
	"github.com/joescharf/ghcrm/internal/output"
)

// cliEnv is a command environment wired to a fake API server.
type cliEnv struct {
	api    *apitest.Server
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	testEnv(t)

	api := apitest.New()
	t.Cleanup(api.Close)
	api.AddUser("a@b.com", "pw")
	viper.Set("api_url", api.URL)

	env := &cliEnv{api: api, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	ui = &output.UI{Out: env.out, ErrOut: env.errOut}
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	navigator = &sessionNavigator{ui: ui}

	resetDeps()
	t.Cleanup(resetDeps)

	origStdin, origReadPassword := stdin, readPassword
	stdin = &bytes.Buffer{}
	readPassword = func(string) (string, error) { return "pw", nil }
	t.Cleanup(func() {
		stdin = origStdin
		readPassword = origReadPassword
		authEmail, authName, authPasswordStdin = "", "", false
		projectYes = false
		dryRun = false
	})
	return env
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	authEmail = "a@b.com"
	require.NoError(t, loginRun(context.Background()))
	e.out.Reset()
	e.errOut.Reset()
}
