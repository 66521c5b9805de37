package main

import (
	"fmt"
	"os"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/swaperoo/cmd/swaperoo/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "swaperoo",
	Short: "Blue/green deployment control plane for Elasticsearch aliases",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		err := clay.InitLogger()
		cobra.CheckErr(err)
	},
}

func main() {
	err := clay.InitViper("swaperoo", rootCmd)
	cobra.CheckErr(err)
	err = clay.InitLogger()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logger: %s\n", err)
		os.Exit(1)
	}

	err = cmds.AddToRootCommand(rootCmd)
	cobra.CheckErr(err)

	err = rootCmd.Execute()
	cobra.CheckErr(err)
}
