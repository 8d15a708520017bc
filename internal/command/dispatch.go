package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/olbridge/olbridge/internal/api"
	"github.com/olbridge/olbridge/internal/browse"
	"github.com/olbridge/olbridge/internal/config"
	"github.com/olbridge/olbridge/internal/logging"
	"github.com/olbridge/olbridge/internal/session"
	"github.com/olbridge/olbridge/internal/transfer"
	"github.com/olbridge/olbridge/internal/uploadmode"
)

// Options holds the local directories the transfer commands operate on.
type Options struct {
	// BackupSource is the local directory "backup" pushes to the remote.
	BackupSource string

	// RestoreDest is the local directory "restore" fills.
	RestoreDest string
}

// Dispatcher executes parsed commands for a session identity and renders
// the reply text.
type Dispatcher struct {
	nav        *browse.Controller
	upload     *uploadmode.Controller
	transfers  *transfer.Engine
	autobackup *config.AutobackupStore
	log        *logging.Logger
	opts       Options
}

// NewDispatcher wires a dispatcher over the three controllers.
func NewDispatcher(nav *browse.Controller, upload *uploadmode.Controller, transfers *transfer.Engine, autobackup *config.AutobackupStore, log *logging.Logger, opts Options) *Dispatcher {
	return &Dispatcher{
		nav:        nav,
		upload:     upload,
		transfers:  transfers,
		autobackup: autobackup,
		log:        log,
		opts:       opts,
	}
}

// Execute parses and runs one command line for identity, returning the
// reply text. Errors come back unrendered; Describe turns them into user
// text.
func (d *Dispatcher) Execute(ctx context.Context, identity, line string) (string, error) {
	cmd, err := Parse(line)
	if err != nil {
		return "", err
	}
	return d.Run(ctx, identity, cmd)
}

// Run executes one parsed command.
func (d *Dispatcher) Run(ctx context.Context, identity string, cmd Command) (string, error) {
	switch cmd.Kind {
	case KindList:
		return d.list(ctx, identity, cmd.Arg)

	case KindNext:
		page, err := d.nav.NextPage(identity)
		if err != nil {
			return "", err
		}
		return FormatPage(page), nil

	case KindPrev:
		page, err := d.nav.PrevPage(identity)
		if err != nil {
			return "", err
		}
		return FormatPage(page), nil

	case KindQuit:
		page, err := d.nav.Back(ctx, identity)
		if err != nil {
			return "", err
		}
		return FormatPage(page), nil

	case KindSearch:
		page, err := d.nav.Search(ctx, identity, cmd.Arg)
		if err != nil {
			return "", err
		}
		return FormatPage(page), nil

	case KindInfo:
		detail, err := d.nav.Info(ctx, identity, cmd.Arg)
		if err != nil {
			return "", err
		}
		return FormatDetail(detail), nil

	case KindDownload:
		link, err := d.nav.Link(ctx, identity, cmd.Arg)
		if err != nil {
			return "", err
		}
		return link, nil

	case KindUpload:
		dest, deadline, err := d.upload.Start(ctx, identity, cmd.Arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("upload mode armed for %s; send a file before %s (or \"upload cancel\")",
			dest, deadline.Format("15:04:05")), nil

	case KindUploadCancel:
		if d.upload.Cancel(identity) {
			return "upload mode cancelled", nil
		}
		return "upload mode was not active", nil

	case KindBackup:
		job, err := d.transfers.Backup(ctx, identity, d.opts.BackupSource, cmd.Arg, false, nil)
		if err != nil && !errors.Is(err, transfer.ErrPartialFailure) {
			return "", err
		}
		return FormatJob(job), nil

	case KindRestore:
		job, err := d.transfers.Restore(ctx, identity, cmd.Arg, d.opts.RestoreDest, false, nil)
		if err != nil && !errors.Is(err, transfer.ErrPartialFailure) {
			return "", err
		}
		return FormatJob(job), nil

	case KindAutobackupOn:
		err := d.autobackup.Set(config.AutobackupRule{
			Scope:    identity,
			DestPath: cmd.Arg,
			Enabled:  true,
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("autobackup enabled -> %s", cmd.Arg), nil

	case KindAutobackupOff:
		rule, ok := d.autobackup.Get(identity)
		if !ok || !rule.Enabled {
			return "autobackup was not enabled", nil
		}
		rule.Enabled = false
		if err := d.autobackup.Set(rule); err != nil {
			return "", err
		}
		return "autobackup disabled", nil

	case KindRemove:
		removed, err := d.nav.Remove(ctx, identity, cmd.Arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("removed %s", removed), nil

	case KindMkdir:
		created, err := d.nav.Mkdir(ctx, identity, cmd.Arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("created %s", created), nil

	case KindArchive:
		path, meta, err := d.nav.Archive(ctx, identity, cmd.Arg)
		if err != nil {
			return "", err
		}
		return FormatArchive(path, meta), nil

	case KindHelp:
		return helpText, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Kind)
}

// list handles "ls" with no argument, an index, or a path.
func (d *Dispatcher) list(ctx context.Context, identity, arg string) (string, error) {
	switch {
	case arg == "":
		page, err := d.nav.ListCurrent(ctx, identity)
		if err != nil {
			return "", err
		}
		return FormatPage(page), nil

	case isIndex(arg):
		n := 0
		for _, r := range arg {
			n = n*10 + int(r-'0')
		}
		result, err := d.nav.Open(ctx, identity, n)
		if err != nil {
			return "", err
		}
		if result.File != nil {
			return fmt.Sprintf("%s (%s): use \"download %s\" for a link",
				result.File.Name, FormatSize(result.File.Size), arg), nil
		}
		return FormatPage(result.Page), nil

	default:
		result, err := d.nav.ListPath(ctx, identity, arg)
		if err != nil {
			return "", err
		}
		if result.File != nil {
			link, err := d.nav.Link(ctx, identity, result.File.Path)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s)\n%s",
				result.File.Name, FormatSize(result.File.Size), link), nil
		}
		return FormatPage(result.Page), nil
	}
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Describe maps an error onto the reply a chat user should see.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, api.ErrNotConfigured):
		return "no connection configured; set the server address and credentials first"
	case errors.Is(err, api.ErrAuth):
		return "the server rejected the configured credentials"
	case errors.Is(err, api.ErrConnection):
		return "could not reach the server; try again later"
	case errors.Is(err, api.ErrNotFound):
		return "that path does not exist"
	case errors.Is(err, session.ErrNoParent):
		return "already at the starting directory"
	case errors.Is(err, browse.ErrIndexOutOfRange):
		return "that number is not on the current page"
	case errors.Is(err, browse.ErrNoListing):
		return "nothing listed yet; run \"ls\" first"
	case errors.Is(err, uploadmode.ErrSizeLimit):
		return "that file is larger than the upload limit"
	case errors.Is(err, uploadmode.ErrExtensionNotAllowed):
		return "that file type is not allowed"
	case errors.Is(err, uploadmode.ErrNotActive):
		return "upload mode is not active; run \"upload\" first"
	case errors.Is(err, transfer.ErrJobRunning):
		return "a transfer job is already running; wait for it to finish"
	case errors.Is(err, transfer.ErrPartialFailure):
		return "some items failed to transfer; check the job summary"
	default:
		return err.Error()
	}
}
