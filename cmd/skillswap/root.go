package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/config"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/session"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app is what every subcommand shares once the root has loaded config.
type app struct {
	cfg   *config.Client
	store *session.Store
	log   zerolog.Logger

	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

// newRootCmd builds the command tree. in and out are the terminal streams.
func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out, reader: bufio.NewReader(in)}

	root := &cobra.Command{
		Use:   "skillswap",
		Short: "SkillSwap client for chat, notifications and skill exchanges",
		Long: `skillswap talks to a SkillSwap server: sign in, browse profiles,
chat with other members in real time, follow notifications and manage
skill exchange requests.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringP("config", "c", "", "config file path (default is ./client.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	root.PersistentFlags().String("server", "", "server base url, overrides config")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfilesCmd(a),
		newProfileCmd(a),
		newChatCmd(a),
		newNotificationsCmd(a),
		newNotifyCmd(a),
		newExchangesCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	server, _ := cmd.Flags().GetString("server")

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadClient(configFile)
	if err != nil {
		return err
	}
	if server != "" {
		liveURL, err := config.LiveURLFor(server)
		if err != nil {
			return err
		}
		cfg.BaseURL, cfg.LiveURL = server, liveURL
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	path := cfg.SessionPath
	if path == "" {
		if path, err = session.DefaultPath(); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.store = session.NewStore(path)
	a.log = logging.NewWithWriter(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}, cmd.ErrOrStderr())
	return nil
}

// client returns an API client carrying token.
func (a *app) client(token string) *api.Client {
	return api.New(a.cfg.BaseURL, token,
		api.WithLogger(a.log),
		api.WithHTTPClient(&http.Client{Timeout: a.cfg.RequestTimeout}),
	)
}

// session loads the stored login or explains how to get one.
func (a *app) session() (session.Session, *api.Client, error) {
	sess, err := a.store.Load()
	if errors.Is(err, session.ErrNoSession) {
		return session.Session{}, nil, errors.New("not logged in, run 'skillswap login' first")
	}
	if err != nil {
		return session.Session{}, nil, err
	}
	return sess, a.client(sess.Token), nil
}

// dial opens the live connection for sess.
func (a *app) dial(ctx context.Context, sess session.Session) (*live.Conn, error) {
	logger := a.log
	return live.Dial(ctx, a.cfg.LiveURL, sess, live.Options{Logger: &logger})
}

// hangUp writes out pending events before closing conn.
func hangUp(conn *live.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Flush(ctx)
	conn.Close()
}

// requestContext bounds a single REST round trip.
func (a *app) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.cfg.RequestTimeout)
}

// explain turns an expired-token reply into an actionable message.
func (a *app) explain(err error) error {
	if errors.Is(err, api.ErrUnauthenticated) {
		return fmt.Errorf("%w, run 'skillswap login' again", err)
	}
	return err
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
