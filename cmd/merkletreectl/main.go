package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func rootCommand() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:   "merkletreectl",
		Short: "Inspect and mutate a persistent authenticated key-value store",
	}
	root.PersistentFlags().String("prefix", "", "filesystem path prefix (default merkleTree/)")
	root.AddCommand(
		openCommand(),
		putCommand(),
		getCommand(),
		rootHashCommand(),
		flushCommand(),
		cloneCommand(),
		updateCommand(),
		closeCommand(),
	)
	return root, nil
}

func main() {
	root, err := rootCommand()
	if err != nil {
		os.Exit(1)
	}
	if err := root.Execute(); err != nil {
		fmt.Printf("Error: %s\n", err.Error())
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
