// Package command parses and dispatches the chat-style command set against
// the navigation, upload-mode, and transfer layers.
package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned for verbs outside the command set.
var ErrUnknownCommand = errors.New("unknown command")

// Kind identifies one command in the closed set.
type Kind string

const (
	KindList          Kind = "ls"
	KindNext          Kind = "next"
	KindPrev          Kind = "prev"
	KindQuit          Kind = "quit"
	KindSearch        Kind = "search"
	KindInfo          Kind = "info"
	KindDownload      Kind = "download"
	KindUpload        Kind = "upload"
	KindUploadCancel  Kind = "upload-cancel"
	KindBackup        Kind = "backup"
	KindRestore       Kind = "restore"
	KindAutobackupOn  Kind = "autobackup-enable"
	KindAutobackupOff Kind = "autobackup-disable"
	KindRemove        Kind = "rm"
	KindMkdir         Kind = "mkdir"
	KindArchive       Kind = "archive"
	KindHelp          Kind = "help"
)

// Command is one parsed command. Arg carries the single free-form argument
// for the kinds that take one (path, index, keyword, destination).
type Command struct {
	Kind Kind
	Arg  string
}

func usageErr(usage string) error {
	return fmt.Errorf("usage: %s", usage)
}

// Parse maps a command line onto the closed command set. The verb is
// case-insensitive; arguments keep their case.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}
	verb := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.Join(args, " ")

	switch verb {
	case "ls", "list":
		return Command{Kind: KindList, Arg: rest}, nil

	case "next", "n":
		return Command{Kind: KindNext}, nil

	case "prev", "p":
		return Command{Kind: KindPrev}, nil

	case "quit", "q", "back":
		return Command{Kind: KindQuit}, nil

	case "search":
		if rest == "" {
			return Command{}, usageErr("search <keyword>")
		}
		return Command{Kind: KindSearch, Arg: rest}, nil

	case "info":
		if rest == "" {
			return Command{}, usageErr("info <index|path>")
		}
		return Command{Kind: KindInfo, Arg: rest}, nil

	case "download", "dl":
		if rest == "" {
			return Command{}, usageErr("download <index|path>")
		}
		return Command{Kind: KindDownload, Arg: rest}, nil

	case "upload":
		if len(args) > 0 && strings.EqualFold(args[0], "cancel") {
			return Command{Kind: KindUploadCancel}, nil
		}
		return Command{Kind: KindUpload, Arg: rest}, nil

	case "backup":
		if rest == "" {
			return Command{}, usageErr("backup <remote dir>")
		}
		return Command{Kind: KindBackup, Arg: rest}, nil

	case "restore":
		if rest == "" {
			return Command{}, usageErr("restore <remote dir>")
		}
		return Command{Kind: KindRestore, Arg: rest}, nil

	case "autobackup":
		if len(args) == 0 {
			return Command{}, usageErr("autobackup enable <remote dir> | autobackup disable")
		}
		switch strings.ToLower(args[0]) {
		case "enable":
			dest := strings.Join(args[1:], " ")
			if dest == "" {
				return Command{}, usageErr("autobackup enable <remote dir>")
			}
			return Command{Kind: KindAutobackupOn, Arg: dest}, nil
		case "disable":
			return Command{Kind: KindAutobackupOff}, nil
		default:
			return Command{}, usageErr("autobackup enable <remote dir> | autobackup disable")
		}

	case "rm", "del":
		if rest == "" {
			return Command{}, usageErr("rm <index|path>")
		}
		return Command{Kind: KindRemove, Arg: rest}, nil

	case "mkdir":
		if rest == "" {
			return Command{}, usageErr("mkdir <path>")
		}
		return Command{Kind: KindMkdir, Arg: rest}, nil

	case "archive":
		if rest == "" {
			return Command{}, usageErr("archive <index|path>")
		}
		return Command{Kind: KindArchive, Arg: rest}, nil

	case "help", "?":
		return Command{Kind: KindHelp}, nil
	}

	return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, verb)
}
