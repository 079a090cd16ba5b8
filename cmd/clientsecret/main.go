// Command clientsecret prepares client registry files.
//
//	clientsecret hash "$NETFLIX_CLIENT_SECRET"
//	NETFLIX_CLIENT_SECRET=... clientsecret registry > clients.yaml
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raakeshmj/gobill/internal/auth"
	"github.com/raakeshmj/gobill/internal/config"
)

func main() {
	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "clientsecret",
		Short:        "Hash OAuth client secrets for the gobill client registry",
		SilenceUsage: true,
	}
	cmd.AddCommand(newHashCmd(), newRegistryCmd(lookup))
	return cmd
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [secret]",
		Short: "Print the bcrypt hash of a secret read from the argument or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				secret = strings.TrimRight(string(data), "\r\n")
			}
			if secret == "" {
				return errors.New("no secret given")
			}

			hash, err := auth.HashSecret(secret)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newRegistryCmd(lookup func(string) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "Print a YAML registry for every platform with a <PLATFORM>_CLIENT_SECRET set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clients, err := config.ClientsFromEnv(lookup)
			if err != nil {
				return err
			}
			if len(clients) == 0 {
				return errors.New("no <PLATFORM>_CLIENT_SECRET variables set")
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(config.ClientRegistry{Clients: clients}); err != nil {
				return fmt.Errorf("encode registry: %w", err)
			}
			return enc.Close()
		},
	}
}
