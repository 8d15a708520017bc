// Package cli implements the olbridge command-line interface.
package cli

import (
	"fmt"
	nethttp "net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/browse"
	"github.com/olbridge/olbridge/internal/cache"
	"github.com/olbridge/olbridge/internal/command"
	"github.com/olbridge/olbridge/internal/config"
	olhttp "github.com/olbridge/olbridge/internal/http"
	"github.com/olbridge/olbridge/internal/logging"
	"github.com/olbridge/olbridge/internal/session"
	"github.com/olbridge/olbridge/internal/transfer"
	"github.com/olbridge/olbridge/internal/uploadmode"
	"github.com/olbridge/olbridge/internal/version"
)

// localIdentity keys the session used by one-shot CLI commands. Chat
// deployments use per-sender identities through the shell/dispatcher.
const localIdentity = "local"

// App carries the wired components shared by all commands.
type App struct {
	cfg        *config.Config
	cfgPath    string
	log        *logging.Logger
	httpClient *nethttp.Client
	listings   *cache.ListingCache
	users      *config.UserStore
	autobackup *config.AutobackupStore
	sessions   *session.Store
	dial       api.Dialer
	nav        *browse.Controller
	upload     *uploadmode.Controller
	transfers  *transfer.Engine
	dispatcher *command.Dispatcher
}

// init wires every component from the loaded config. Called once from the
// root command's PersistentPreRunE, after flags are parsed.
func (a *App) init(cfgPath string, verbose bool) error {
	if verbose {
		logging.SetGlobalLevel(zerolog.DebugLevel)
	}
	a.log = logging.NewDefaultLogger()
	a.cfgPath = cfgPath

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.httpClient, err = olhttp.NewClient(cfg)
	if err != nil {
		return err
	}

	a.users, err = config.DefaultUserStore()
	if err != nil {
		return err
	}
	a.autobackup, err = config.DefaultAutobackupStore()
	if err != nil {
		return err
	}

	a.listings = cache.New(time.Duration(cfg.Browse.CacheTTLSeconds) * time.Second)
	a.dial = api.CachingDialer(func(creds api.Credentials) api.Remote {
		return api.NewClient(creds, a.httpClient)
	})
	a.sessions = session.NewStore(a.resolveCredentials)

	a.nav = browse.NewController(a.sessions, a.listings, a.dial, a.log, browse.Options{
		PageSize:     cfg.Browse.PageSize,
		CacheEnabled: cfg.Browse.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Browse.CacheTTLSeconds) * time.Second,
	})
	a.upload = uploadmode.NewController(a.sessions, a.listings, a.dial, a.log, uploadmode.Options{
		Window:   time.Duration(cfg.Transfer.UploadWindowMinutes) * time.Minute,
		MaxBytes: int64(cfg.Transfer.MaxUploadMB) * 1024 * 1024,
		Allowed:  cfg.AllowedExtensionList(),
	})
	a.transfers = transfer.NewEngine(a.sessions, a.listings, a.dial, a.autobackup, a.log, cfg.Transfer.Parallelism)

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	// Transfers get their own subdirectory; the data dir root also holds
	// the config and credential records, which must never be backed up to
	// the remote or overwritten by a restore.
	filesDir := filepath.Join(dataDir, "files")
	if err := os.MkdirAll(filesDir, 0700); err != nil {
		return err
	}
	a.dispatcher = command.NewDispatcher(a.nav, a.upload, a.transfers, a.autobackup, a.log, command.Options{
		BackupSource: filesDir,
		RestoreDest:  filesDir,
	})
	return nil
}

// resolveCredentials maps a session identity onto its credentials. Per-user
// mode consults the identity's own record first; the shared [server]
// section is the fallback either way. Unconfigured identities get empty
// credentials, which surface as ErrNotConfigured on first use.
func (a *App) resolveCredentials(identity string) (api.Credentials, error) {
	if a.cfg.Auth.PerUser {
		rec, err := a.users.Load(identity)
		if err != nil {
			return api.Credentials{}, err
		}
		if rec.IsConfigured() {
			return api.Credentials{
				BaseURL:            rec.ServerURL,
				PublicURL:          rec.PublicURL,
				FixedBaseDirectory: rec.FixedBaseDirectory,
				Username:           rec.Username,
				Password:           rec.Password,
				Token:              rec.Token,
			}, nil
		}
	}
	return api.Credentials{
		BaseURL:            a.cfg.Server.URL,
		PublicURL:          a.cfg.Server.PublicURL,
		FixedBaseDirectory: a.cfg.Server.FixedBaseDirectory,
		Username:           a.cfg.Server.Username,
		Password:           a.cfg.Server.Password,
		Token:              a.cfg.Server.Token,
	}, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}
	var cfgPath string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:     "olbridge",
		Short:   "Browse and transfer files on an Openlist server",
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cfgPath, verbose)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.config/olbridge/config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newShellCmd(app),
		newLsCmd(app),
		newRmCmd(app),
		newGetCmd(app),
		newPutCmd(app),
		newBackupCmd(app),
		newRestoreCmd(app),
		newJobsCmd(app),
		newConfigCmd(app),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", command.Describe(err))
		return 1
	}
	return 0
}
