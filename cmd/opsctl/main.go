package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator tooling for the cashback control plane",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("actor", "opsctl", "User id recorded in the audit trail")

	rootCmd.AddCommand(freezeCmd())
	rootCmd.AddCommand(reactivateCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(verifyChainCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
