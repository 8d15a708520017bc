package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/pathutil"
)

// remoteForLocal dials the remote with the CLI session's credentials.
func (a *App) remoteForLocal() (api.Remote, api.Credentials, error) {
	snap, err := a.sessions.Snapshot(localIdentity)
	if err != nil {
		return nil, api.Credentials{}, err
	}
	if !snap.Creds.Configured() {
		return nil, api.Credentials{}, api.ErrNotConfigured
	}
	return a.dial(snap.Creds), snap.Creds, nil
}

// newGetCmd downloads one remote file. Files over the configured download
// cap are not fetched; their direct link is printed instead.
func newGetCmd(app *App) *cobra.Command {
	var output string
	var linkOnly bool

	cmd := &cobra.Command{
		Use:   "get <remote path>",
		Short: "Download a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			remote, _, err := app.remoteForLocal()
			if err != nil {
				return err
			}
			remotePath := pathutil.Normalize(args[0])

			info, err := remote.Info(ctx, remotePath)
			if err != nil {
				return err
			}
			if info.IsDir {
				return fmt.Errorf("%s is a directory", remotePath)
			}

			maxBytes := int64(app.cfg.Transfer.MaxDownloadMB) * 1024 * 1024
			if linkOnly || (maxBytes > 0 && info.Size > maxBytes) {
				link, err := remote.Link(ctx, remotePath)
				if err != nil {
					return err
				}
				if !linkOnly {
					app.log.Warnf("%s exceeds the %d MB download cap; printing link only",
						info.Name, app.cfg.Transfer.MaxDownloadMB)
				}
				fmt.Println(link)
				return nil
			}

			dest := output
			if dest == "" {
				dest = info.Name
			}
			tmp := dest + ".part"
			f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return err
			}

			bar := progressbar.DefaultBytes(info.Size, "downloading")
			_, err = remote.Download(ctx, remotePath, io.MultiWriter(f, bar))
			closeErr := f.Close()
			if err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(tmp)
				return err
			}
			if err := os.Rename(tmp, dest); err != nil {
				os.Remove(tmp)
				return err
			}
			fmt.Printf("saved %s\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "local destination path (default: remote file name)")
	cmd.Flags().BoolVar(&linkOnly, "link", false, "print the direct download link instead of fetching")
	return cmd
}

// newPutCmd uploads one local file into a remote directory.
func newPutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "put <local file> <remote dir>",
		Short: "Upload a local file to a remote directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			remote, creds, err := app.remoteForLocal()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			fi, err := f.Stat()
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return fmt.Errorf("%s is a directory; use backup for directories", args[0])
			}

			destDir := pathutil.Normalize(args[1])
			target := pathutil.Join(destDir, filepath.Base(args[0]))

			bar := progressbar.DefaultBytes(fi.Size(), "uploading")
			if err := remote.Upload(ctx, target, io.TeeReader(f, bar), fi.Size()); err != nil {
				return err
			}
			app.listings.InvalidateTree(creds.Identity(), destDir)
			fmt.Printf("uploaded %s\n", target)
			return nil
		},
	}
}
