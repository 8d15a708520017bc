package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olbridge/olbridge/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("olbridge %s", version.Version)
			if version.BuildTime != "" {
				fmt.Printf(" (built %s)", version.BuildTime)
			}
			fmt.Println()
		},
	}
}
