package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olbridge/olbridge/internal/command"
)

// newShellCmd starts an interactive browsing session speaking the same
// command set a chat deployment exposes.
func newShellCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive browsing session",
		Long:  "Start an interactive session. Type \"help\" for the command set, \"exit\" to leave.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 64*1024), 64*1024)

			fmt.Println("olbridge shell: \"help\" for commands, \"exit\" to leave")
			for {
				fmt.Print("olbridge> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" {
					return nil
				}

				reply, err := app.dispatcher.Execute(ctx, localIdentity, line)
				if err != nil {
					fmt.Println(command.Describe(err))
					continue
				}
				fmt.Println(reply)
			}
		},
	}
}

// newRmCmd deletes a remote entry. Destructive, so it refuses to run
// without an explicit confirmation flag.
func newRmCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a remote file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			removed, err := app.nav.Remove(cmd.Context(), localIdentity, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("removed %s\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

// newLsCmd lists a directory once, without entering the shell.
func newLsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			result, err := app.nav.ListPath(cmd.Context(), localIdentity, path)
			if err != nil {
				return err
			}
			if result.File != nil {
				link, err := app.nav.Link(cmd.Context(), localIdentity, result.File.Path)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%s)\n%s\n", result.File.Name, command.FormatSize(result.File.Size), link)
				return nil
			}
			fmt.Print(command.FormatPage(result.Page))
			return nil
		},
	}
}
