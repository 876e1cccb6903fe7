// Command contextctl inspects and manages the context window module
// registry: discovering, installing, and uninstalling modules, reloading
// user-installed manifests, and running a one-off assembly against a
// context window type definition to print the resulting snapshot.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"weavectx/internal/contextwindow"
	"weavectx/internal/contextwindow/modules"
	"weavectx/internal/shared/config"
	"weavectx/internal/shared/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var userModulesDir string
	var typesDir string

	root := &cobra.Command{
		Use:   "contextctl",
		Short: "Inspect and manage context window modules",
	}
	root.PersistentFlags().StringVar(&userModulesDir, "modules-dir", "./context_modules", "directory holding user-installed module manifests")
	root.PersistentFlags().StringVar(&typesDir, "types-dir", "./context_window_types", "directory holding context window type YAML definitions")

	// Flags double as CONTEXTCTL_* environment variables, so a deployment
	// can pin --modules-dir/--types-dir without a wrapper script. Resolved
	// in PersistentPreRunE rather than here, since flag parsing (and any
	// explicit --modules-dir/--types-dir the user passed) has not happened
	// yet at command-construction time.
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		v.SetEnvPrefix("contextctl")
		v.AutomaticEnv()
		if err := v.BindPFlags(root.PersistentFlags()); err != nil {
			return err
		}
		if !cmd.Flags().Changed("modules-dir") {
			userModulesDir = v.GetString("modules-dir")
		}
		if !cmd.Flags().Changed("types-dir") {
			typesDir = v.GetString("types-dir")
		}
		return nil
	}

	newRegistry := func() *contextwindow.Registry {
		logger := logging.NewComponentLogger("contextctl")
		r := contextwindow.NewRegistry(userModulesDir, logger)
		modules.RegisterBuiltins(r)
		return r
	}

	root.AddCommand(newListCommand(newRegistry))
	root.AddCommand(newDiscoverCommand(newRegistry))
	root.AddCommand(newReloadCommand(newRegistry))
	root.AddCommand(newInstallCommand(newRegistry))
	root.AddCommand(newUninstallCommand(newRegistry))
	root.AddCommand(newPurgeCommand(newRegistry))
	root.AddCommand(newAssembleCommand(newRegistry, &typesDir))

	return root
}

func newListCommand(newRegistry func() *contextwindow.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRegistry()
			r.DiscoverModules()
			return printJSON(cmd, r.GetInstalledModules())
		},
	}
}

func newDiscoverCommand(newRegistry func() *contextwindow.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Scan the user module directory and load any new manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRegistry()
			loaded := r.DiscoverModules()
			cmd.Printf("discovered %d module(s)\n", len(loaded))
			for id := range loaded {
				cmd.Printf("  %s\n", id)
			}
			return nil
		},
	}
}

func newReloadCommand(newRegistry func() *contextwindow.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-scan the user module directory, reloading changed manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRegistry()
			r.DiscoverModules()
			reloaded := r.Reload()
			cmd.Printf("reloaded %d module(s)\n", len(reloaded))
			return nil
		},
	}
}

func newInstallCommand(newRegistry func() *contextwindow.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "install <source-dir>",
		Short: "Install a module from a source directory into the user module path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRegistry()
			r.DiscoverModules()
			defn, err := r.InstallModule(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("installed %s (version %s)\n", defn.ModuleID, defn.Version)
			return nil
		},
	}
}

func newUninstallCommand(newRegistry func() *contextwindow.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <module-id>",
		Short: "Remove an installed, non-builtin, non-required module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRegistry()
			r.DiscoverModules()
			if err := r.UninstallModule(args[0]); err != nil {
				return err
			}
			cmd.Printf("uninstalled %s\n", args[0])
			return nil
		},
	}
}

func newPurgeCommand(newRegistry func() *contextwindow.Registry) *cobra.Command {
	var sessionID, userUUID string
	cmd := &cobra.Command{
		Use:   "purge <module-id>",
		Short: "Purge a module's session-scoped state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRegistry()
			r.DiscoverModules()
			result, err := r.PurgeModule(context.Background(), args[0], sessionID, userUUID)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to scope the purge to")
	cmd.Flags().StringVar(&userUUID, "user", "", "user uuid to scope the purge to")
	return cmd
}

func newAssembleCommand(newRegistry func() *contextwindow.Registry, typesDir *string) *cobra.Command {
	var profile string
	var contextWindowTypeID string
	var modelContextLimit int
	var outputReserve int
	var sessionID string
	var userUUID string

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Run one assembly pass against a context window type and print the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRegistry()
			r.DiscoverModules()

			cwTypes, err := config.LoadContextWindowTypes(*typesDir)
			if err != nil {
				return err
			}
			cwt := contextwindow.ContextWindowType{ID: "default"}
			if contextWindowTypeID != "" {
				loaded, ok := cwTypes[contextWindowTypeID]
				if !ok {
					return fmt.Errorf("unknown context window type %q", contextWindowTypeID)
				}
				cwt = *loaded
			}

			actx := &contextwindow.AssemblyContext{
				ProfileType:        contextwindow.ProfileType(profile),
				SessionID:          sessionID,
				UserUUID:           userUUID,
				ModelContextLimit:  modelContextLimit,
				OutputTokenReserve: outputReserve,
				Dependencies:       map[string]any{},
			}

			orch := contextwindow.NewOrchestrator(r, logging.NewComponentLogger("contextctl"))
			assembled := orch.Assemble(context.Background(), cwt, actx)
			cmd.Println(assembled.Snapshot.ToSummaryText())
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", string(contextwindow.ProfileToolEnabled), "profile type to assemble for")
	cmd.Flags().StringVar(&contextWindowTypeID, "type", "", "context window type id to load from --types-dir (when omitted, an empty type with no modules is used)")
	cmd.Flags().IntVar(&modelContextLimit, "model-limit", 128000, "model context window size, in tokens")
	cmd.Flags().IntVar(&outputReserve, "output-reserve", 4000, "tokens reserved for model output (replaced during assembly by the reserve computed from the type's output reserve percentage)")
	cmd.Flags().StringVar(&sessionID, "session", "cli-session", "session id to assemble for")
	cmd.Flags().StringVar(&userUUID, "user", "", "user uuid to assemble for")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
