package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petal-labs/anthropic-go/cli/keystore"
)

func (a *App) newKeysCommand() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
		Long:  `Manage API keys in the encrypted keystore. Keys are never printed.`,
	}

	keys.AddCommand(&cobra.Command{
		Use:   "set [name]",
		Short: "Store an API key (default name: anthropic)",
		Long:  `Store an API key. The key is read without echo when stdin is a terminal.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := keyName
			if len(args) == 1 {
				name = args[0]
			}
			key, err := a.readKey(fmt.Sprintf("Enter API key for %s: ", name))
			if err != nil {
				return exitWithCode(ExitValidation, err)
			}
			ks, err := a.newKeystore()
			if err != nil {
				return fmt.Errorf("failed to open keystore: %w", err)
			}
			if err := ks.Set(name, key); err != nil {
				return fmt.Errorf("failed to store key: %w", err)
			}
			fmt.Fprintf(a.stdout, "API key for %s stored (%s).\n", name, key.Hint())
			return nil
		},
	})

	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored key names",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.newKeystore()
			if err != nil {
				return fmt.Errorf("failed to open keystore: %w", err)
			}
			names, err := ks.List()
			if err != nil {
				return fmt.Errorf("failed to list keys: %w", err)
			}
			if len(names) == 0 {
				fmt.Fprintln(a.stdout, "No API keys stored.")
				return nil
			}
			fmt.Fprintln(a.stdout, "Stored keys:")
			for _, name := range names {
				fmt.Fprintf(a.stdout, "  - %s\n", name)
			}
			return nil
		},
	})

	keys.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.newKeystore()
			if err != nil {
				return fmt.Errorf("failed to open keystore: %w", err)
			}
			if err := ks.Delete(args[0]); err != nil {
				if keystore.IsNotFound(err) {
					return exitWithCode(ExitValidation, fmt.Errorf("no key stored for %s", args[0]))
				}
				return fmt.Errorf("failed to delete key: %w", err)
			}
			fmt.Fprintf(a.stdout, "API key for %s deleted.\n", args[0])
			return nil
		},
	})

	return keys
}
