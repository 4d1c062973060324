// Package cmd implements the rewearifyctl command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/rewearify/rewearify/internal/access"
	"github.com/rewearify/rewearify/internal/api"
	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/notify"
	"github.com/rewearify/rewearify/internal/session"
)

// Settings are read from REWEARIFY_* variables and overridden by flags.
type Settings struct {
	Server         string        `envconfig:"SERVER" default:"http://localhost:8080"`
	SessionDir     string        `envconfig:"SESSION_DIR"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"15s"`
	PolicyFile     string        `envconfig:"POLICY_FILE"`
	NonInteractive bool          `envconfig:"NON_INTERACTIVE"`
}

// LoadSettings reads the REWEARIFY_ environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("REWEARIFY", &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// runtime is the per-invocation client state shared by subcommands.
type runtime struct {
	settings Settings
	store    *session.FileStore
	service  *auth.Service
	gate     *access.Gate
	out      io.Writer
}

type runtimeKey struct{}

func runtimeFrom(cmd *cobra.Command) *runtime {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime)
	if !ok {
		panic("rewearifyctl: runtime not found in context")
	}
	return rt
}

func newRuntime(ctx context.Context, s Settings, out io.Writer) (*runtime, error) {
	store, err := session.NewFileStore(s.SessionDir)
	if err != nil {
		return nil, err
	}
	table, err := access.LoadTable(s.PolicyFile)
	if err != nil {
		return nil, err
	}

	var svc *auth.Service
	client := api.NewClient(s.Server,
		api.WithHTTPClient(&http.Client{Timeout: s.Timeout}),
		api.WithTokenSource(api.TokenFunc(func() string { return svc.Token() })),
	)
	ledger := notify.NewLedger(notify.NewRemoteSource(client), nil)
	svc = auth.NewService(auth.NewRemoteBackend(client), store, ledger, auth.WithTimeout(s.Timeout))
	if err := svc.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore session from %s: %w", store.Path(), err)
	}
	pterm.SetDefaultOutput(out)
	return &runtime{settings: s, store: store, service: svc, gate: access.NewGate(table), out: out}, nil
}

// NewRootCmd builds the command tree around defaults.
func NewRootCmd(defaults Settings) *cobra.Command {
	settings := defaults
	root := &cobra.Command{
		Use:   "rewearifyctl",
		Short: "ReWearify command-line client",
		Long: `rewearifyctl signs in to a ReWearify server, keeps the session in a local
file and shows the dashboard, notifications and route access for that identity.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), settings, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&settings.Server, "server", defaults.Server, "ReWearify server URL (REWEARIFY_SERVER)")
	flags.StringVar(&settings.SessionDir, "session-dir", defaults.SessionDir, "Directory holding session.json (REWEARIFY_SESSION_DIR)")
	flags.DurationVar(&settings.Timeout, "timeout", defaults.Timeout, "Request timeout (REWEARIFY_TIMEOUT)")
	flags.StringVar(&settings.PolicyFile, "policy-file", defaults.PolicyFile, "YAML route policy table (REWEARIFY_POLICY_FILE)")
	flags.BoolVar(&settings.NonInteractive, "non-interactive", defaults.NonInteractive, "Never prompt (REWEARIFY_NON_INTERACTIVE)")

	root.AddCommand(
		newLoginCmd(),
		newSignupCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newProfileCmd(),
		newNotificationsCmd(),
		newReadCmd(),
		newDashboardCmd(),
		newCanCmd(),
		newForgotPasswordCmd(),
		newResetPasswordCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	settings, err := LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := NewRootCmd(settings).ExecuteContext(context.Background()); err != nil {
		pterm.Error.Println(describe(err))
		os.Exit(1)
	}
}

// describe renders err for the terminal, listing field problems and keeping
// the cause of transport faults.
func describe(err error) string {
	var (
		verr *auth.ValidationError
		terr *auth.TransportError
	)
	switch {
	case errors.As(err, &verr):
		var b strings.Builder
		b.WriteString(auth.UserMessage(err))
		for _, name := range sortedKeys(verr.Fields) {
			fmt.Fprintf(&b, "\n  %s: %s", name, verr.Fields[name])
		}
		return b.String()
	case errors.As(err, &terr):
		return fmt.Sprintf("%s: %v", auth.UserMessage(err), terr.Err)
	case auth.Status(err) != http.StatusInternalServerError:
		return auth.UserMessage(err)
	}
	return err.Error()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (rt *runtime) success(format string, args ...any) {
	pterm.Success.Printfln(format, args...)
}

func (rt *runtime) info(format string, args ...any) {
	pterm.Info.Printfln(format, args...)
}

func (rt *runtime) table(rows pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// secret returns the flag value, prompting when it is empty and prompts are
// allowed.
func (rt *runtime) secret(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	if rt.settings.NonInteractive {
		return "", fmt.Errorf("%s is required in non-interactive mode", label)
	}
	return pterm.DefaultInteractiveTextInput.WithMask("*").Show(label)
}
