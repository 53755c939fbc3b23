package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// Keys the config store accepts. api_key and gemini_key are secrets;
// list masks them.
var configKeys = map[string]bool{
	"api_key":    true,
	"gemini_key": true,
	"backend":    true,
	"server_url": true,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persisted settings and credentials",
		Long: `Stores default settings (backend, server URL) and credentials
(Datalab API key, Gemini API key) so they do not have to be passed on
every invocation. Values are kept in a user-scoped JSON file.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !configKeys[key] {
				return fmt.Errorf("unknown key %q (supported: %s)", key, supportedKeys())
			}
			store, err := openConfigStore()
			if err != nil {
				return err
			}
			if err := store.Set(key, args[1]); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", key)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a persisted setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return err
			}
			v, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("%s is not set", args[0])
			}
			fmt.Println(v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a persisted setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return err
			}
			values := store.All()
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v := values[k]
				if strings.HasSuffix(k, "_key") && len(v) > 4 {
					v = v[:4] + strings.Repeat("*", len(v)-4)
				}
				fmt.Printf("%s=%s\n", k, v)
			}
			return nil
		},
	})

	return cmd
}

func supportedKeys() string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
