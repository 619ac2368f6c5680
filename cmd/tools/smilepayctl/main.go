package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	// same .env the api reads; absent is fine
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "smilepayctl",
		Short:   "Operator tools for the SmilePay billing service",
		Version: Version,
	}

	rootCmd.AddCommand(digestCmd())
	rootCmd.AddCommand(callbackCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hashPassCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
