package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/cringecast/internal/config"
	"github.com/bryan-buckman/cringecast/internal/opml"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add the podcasts of an OPML file to podcasts.toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, ctx, args[0])
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write podcasts.toml as an OPML file (\"-\" for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, ctx, args[0])
		},
	}
}

func runImport(cmd *cobra.Command, ctx *commandContext, path string) error {
	dir, err := ctx.configDir()
	if err != nil {
		return fmt.Errorf("resolve config directory: %w", err)
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve opml path: %w", err)
	}
	file, err := os.Open(expanded)
	if err != nil {
		return fmt.Errorf("open opml: %w", err)
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		return err
	}
	podcasts := make([]config.NewPodcast, 0, len(entries))
	for _, e := range entries {
		podcasts = append(podcasts, config.NewPodcast{Name: e.Name, URL: e.URL})
	}
	added, err := config.AddPodcasts(dir, podcasts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range added {
		fmt.Fprintf(out, "Added %s (%s)\n", p.Name, p.URL)
	}
	fmt.Fprintf(out, "Imported %d of %d podcasts.\n", len(added), len(entries))
	return nil
}

func runExport(cmd *cobra.Command, ctx *commandContext, path string) error {
	dir, err := ctx.configDir()
	if err != nil {
		return fmt.Errorf("resolve config directory: %w", err)
	}
	entries, err := config.LoadPodcasts(dir)
	if err != nil {
		return err
	}
	subs := make([]opml.Entry, 0, len(entries))
	for _, e := range entries {
		subs = append(subs, opml.Entry{Name: e.Name, URL: e.Podcast.URL})
	}
	data, err := opml.Export(config.AppName+" podcasts", subs, time.Now())
	if err != nil {
		return fmt.Errorf("encode opml: %w", err)
	}

	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve opml path: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return fmt.Errorf("write opml: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d podcasts to %s\n", len(subs), expanded)
	return nil
}
