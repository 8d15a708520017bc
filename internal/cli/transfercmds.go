package cli

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/olbridge/olbridge/internal/command"
	"github.com/olbridge/olbridge/internal/transfer"
)

// jobProgress renders one bar that advances as items settle. Workers call
// the callback concurrently, so bar creation is guarded.
func jobProgress(name string) (*mpb.Progress, transfer.ProgressFunc) {
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(48))
	var mu sync.Mutex
	var bar *mpb.Bar

	fn := func(item transfer.Item, done, total int) {
		mu.Lock()
		if bar == nil {
			bar = p.AddBar(int64(total),
				mpb.PrependDecorators(
					decor.Name(name+" "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(decor.Percentage()),
			)
		}
		mu.Unlock()
		bar.Increment()
	}
	return p, fn
}

func newBackupCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "backup <local dir> <remote dir>",
		Short: "Back up a local directory to the remote",
		Long:  "Copy every file under a local directory to a remote directory. Files already present remotely are skipped unless --force is given.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, progress := jobProgress("backup")
			job, err := app.transfers.Backup(cmd.Context(), localIdentity, args[0], args[1], force, progress)
			p.Wait()
			if err != nil && !errors.Is(err, transfer.ErrPartialFailure) {
				return err
			}
			fmt.Print(command.FormatJob(job))
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite files already present at the destination")
	return cmd
}

func newRestoreCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <remote dir> <local dir>",
		Short: "Restore files from a remote directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, progress := jobProgress("restore")
			job, err := app.transfers.Restore(cmd.Context(), localIdentity, args[0], args[1], force, progress)
			p.Wait()
			if err != nil && !errors.Is(err, transfer.ErrPartialFailure) {
				return err
			}
			fmt.Print(command.FormatJob(job))
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite local files that already exist")
	return cmd
}

func newJobsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List transfer jobs from this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := app.transfers.Jobs()
			if len(jobs) == 0 {
				fmt.Println("no jobs")
				return nil
			}
			for _, j := range jobs {
				c := j.Count()
				fmt.Printf("%-14s %-9s %d transferred, %d skipped, %d failed\n",
					j.ID, j.Status, c.Transferred, c.Skipped, c.Failed)
			}
			return nil
		},
	}
}
