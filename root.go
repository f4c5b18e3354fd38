package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configDirFlag string
	var feedFlags []string
	var importPath string
	var exportPath string
	var printPaths bool

	ctx := newCommandContext(&configDirFlag, &feedFlags)

	rootCmd := &cobra.Command{
		Use:           "cringecast",
		Short:         "Download new podcast episodes",
		Long:          "cringecast downloads new episodes of the podcasts listed in podcasts.toml.\nRun without a subcommand to sync every podcast once.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if importPath == "" && exportPath == "" {
				return runSyncCommand(cmd, ctx, syncFlags{print: printPaths})
			}
			// Import runs first so an export in the same call includes it.
			if importPath != "" {
				if err := runImport(cmd, ctx, importPath); err != nil {
					return err
				}
			}
			if exportPath != "" {
				return runExport(cmd, ctx, exportPath)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Configuration directory (default $XDG_CONFIG_HOME/cringecast)")
	rootCmd.PersistentFlags().StringArrayVar(&feedFlags, "feed", nil, "Only sync the named podcast (repeatable)")
	rootCmd.Flags().StringVarP(&importPath, "import", "i", "", "Add the podcasts of an OPML file to podcasts.toml")
	rootCmd.Flags().StringVarP(&exportPath, "export", "e", "", "Write podcasts.toml as an OPML file")
	rootCmd.Flags().BoolVarP(&printPaths, "print", "p", false, "Print the path of every downloaded file")

	rootCmd.AddCommand(newSyncCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))

	return rootCmd
}
