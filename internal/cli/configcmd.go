package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/olbridge/olbridge/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the connection configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(app),
		newConfigSetCmd(app),
		newConfigTestCmd(app),
		newConfigClearCacheCmd(app),
	)
	return cmd
}

// mask hides a secret, keeping just enough to recognize it.
func mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 8)
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			fmt.Printf("server url:           %s\n", cfg.Server.URL)
			fmt.Printf("public url:           %s\n", cfg.Server.PublicURL)
			fmt.Printf("fixed base directory: %s\n", cfg.Server.FixedBaseDirectory)
			fmt.Printf("username:             %s\n", cfg.Server.Username)
			fmt.Printf("password:             %s\n", mask(cfg.Server.Password))
			fmt.Printf("token:                %s\n", mask(cfg.Server.Token))
			fmt.Printf("page size:            %d\n", cfg.Browse.PageSize)
			fmt.Printf("cache:                enabled=%t ttl=%ds\n", cfg.Browse.CacheEnabled, cfg.Browse.CacheTTLSeconds)
			fmt.Printf("upload window:        %dm\n", cfg.Transfer.UploadWindowMinutes)
			fmt.Printf("limits:               upload %d MB, download %d MB\n", cfg.Transfer.MaxUploadMB, cfg.Transfer.MaxDownloadMB)
			fmt.Printf("parallelism:          %d\n", cfg.Transfer.Parallelism)
			fmt.Printf("per-user auth:        %t\n", cfg.Auth.PerUser)
			fmt.Printf("proxy mode:           %s\n", cfg.Proxy.Mode)
			return nil
		},
	}
}

// promptLine reads one line, returning def when the input is empty.
func promptLine(r *bufio.Reader, label, def string) (string, error) {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// promptPassword reads a password without echo. Empty input keeps the
// current value.
func promptPassword(label string) (string, bool, error) {
	fmt.Printf("%s (empty keeps current): ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", false, err
	}
	pw := strings.TrimSpace(string(b))
	return pw, pw != "", nil
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Interactively set the server connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			r := bufio.NewReader(os.Stdin)

			var err error
			if cfg.Server.URL, err = promptLine(r, "server url", cfg.Server.URL); err != nil {
				return err
			}
			if cfg.Server.PublicURL, err = promptLine(r, "public url", cfg.Server.PublicURL); err != nil {
				return err
			}
			if cfg.Server.FixedBaseDirectory, err = promptLine(r, "fixed base directory", cfg.Server.FixedBaseDirectory); err != nil {
				return err
			}
			if cfg.Server.Username, err = promptLine(r, "username", cfg.Server.Username); err != nil {
				return err
			}
			pw, set, err := promptPassword("password")
			if err != nil {
				return err
			}
			if set {
				cfg.Server.Password = pw
				// A fresh password invalidates any saved token.
				cfg.Server.Token = ""
			}

			if err := cfg.ValidateForConnection(); err != nil {
				return err
			}
			if err := config.Save(cfg, app.cfgPath); err != nil {
				return err
			}
			fmt.Println("configuration saved")
			return nil
		},
	}
}

func newConfigTestCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Verify the configured connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, creds, err := app.remoteForLocal()
			if err != nil {
				return err
			}
			entries, err := remote.List(cmd.Context(), "/")
			if err != nil {
				return err
			}
			fmt.Printf("connection ok: %s (%d entries at /)\n", creds.BaseURL, len(entries))
			return nil
		},
	}
}

func newConfigClearCacheCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop all cached listings for the configured connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := app.sessions.Snapshot(localIdentity)
			if err != nil {
				return err
			}
			app.listings.ClearIdentity(snap.Creds.Identity())
			fmt.Println("cache cleared")
			return nil
		},
	}
}
