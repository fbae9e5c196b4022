// Copyright (c) 2025, the shelfdex contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shelfdex/shelfdex/internal/aggregator"
	"github.com/shelfdex/shelfdex/internal/buildinfo"
	"github.com/shelfdex/shelfdex/internal/config"
	"github.com/shelfdex/shelfdex/internal/domain"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "shelfdex",
		Short: "Search and download ebooks across multiple sources",
		Long: `shelfdex - a unified search and download client for Calibre-Web,
Z-Library, Archive.org, Liber3 and Anna's Archive.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunSearchCommand())
	rootCmd.AddCommand(RunDownloadCommand())
	rootCmd.AddCommand(RunInfoCommand())
	rootCmd.AddCommand(RunTestCommand())
	rootCmd.AddCommand(RunSourcesCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newAggregator loads configuration, applies log settings and builds the
// source registry. Callers must Close the returned aggregator.
func newAggregator(configDir, logPath string) (*aggregator.Aggregator, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	if logPath != "" {
		cfg.Config.LogPath = logPath
	}
	cfg.ApplyLogConfig()

	agg := aggregator.New(cfg.Config)
	if len(agg.EnabledSources()) == 0 {
		agg.Close()
		return nil, fmt.Errorf("no sources enabled; edit the config file or set SHELFDEX__*_ENABLED variables")
	}
	return agg, nil
}

func parseSources(names []string) ([]domain.Source, error) {
	var sources []domain.Source
	for _, name := range names {
		s, ok := domain.ParseSource(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown source %q (known: %s)", name, knownSourceNames())
		}
		sources = append(sources, s)
	}
	return sources, nil
}

func knownSourceNames() string {
	var names []string
	for _, s := range domain.AllSources() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func printResult(w *cobra.Command, index int, res domain.SearchResult) {
	w.Printf("%d. [%s] %s\n", index, res.Source, res.Book.Title)
	w.Printf("   Author(s): %s\n", res.Book.Authors)
	if res.Book.Year != "" && res.Book.Year != "Unknown" {
		w.Printf("   Year: %s\n", res.Book.Year)
	}
	if res.Book.Publisher != "" && res.Book.Publisher != "Unknown" {
		w.Printf("   Publisher: %s\n", res.Book.Publisher)
	}
	if res.Book.FileType != "" {
		w.Printf("   Format: %s", res.Book.FileType)
		if res.Book.FileSize != "" {
			w.Printf("  Size: %s", res.Book.FileSize)
		}
		w.Println()
	}
	if res.Book.Description != "" && res.Book.Description != "No description available" {
		w.Printf("   %s\n", res.Book.Description)
	}
}

func printMetadata(w *cobra.Command, meta *domain.BookMetadata) {
	w.Printf("Title:       %s\n", meta.Title)
	w.Printf("Author(s):   %s\n", meta.Authors)
	w.Printf("Year:        %s\n", meta.Year)
	w.Printf("Publisher:   %s\n", meta.Publisher)
	if meta.Language != "" {
		w.Printf("Language:    %s\n", meta.Language)
	}
	if meta.FileType != "" {
		w.Printf("Format:      %s\n", meta.FileType)
	}
	if meta.FileSize != "" {
		w.Printf("Size:        %s\n", meta.FileSize)
	}
	if meta.ISBN != "" {
		w.Printf("ISBN:        %s\n", meta.ISBN)
	}
	if meta.Description != "" {
		w.Printf("Description: %s\n", meta.Description)
	}
}

func RunSearchCommand() *cobra.Command {
	var (
		configDir   string
		logPath     string
		sourceNames []string
		limit       int
	)

	var command = &cobra.Command{
		Use:   "search <query>",
		Short: "Search enabled sources for a book",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			sources, err := parseSources(sourceNames)
			if err != nil {
				return err
			}

			agg, err := newAggregator(configDir, logPath)
			if err != nil {
				return err
			}
			defer agg.Close()

			results, err := agg.Search(cmd.Context(), query, sources, limit)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				cmd.Println("No results found.")
				return nil
			}

			cmd.Printf("Found %d result(s) for %q:\n\n", len(results), query)
			for i, res := range results {
				printResult(cmd, i+1, res)
				cmd.Println()
			}
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")
	command.Flags().StringSliceVar(&sourceNames, "sources", nil, "comma-separated sources to query (default: all enabled)")
	command.Flags().IntVar(&limit, "limit", 0, "maximum results per source (default from config)")

	return command
}

func RunDownloadCommand() *cobra.Command {
	var (
		configDir   string
		logPath     string
		sourceNames []string
		index       int
		outputDir   string
		toStdout    bool
	)

	var command = &cobra.Command{
		Use:   "download <query>",
		Short: "Search and download one result",
		Long: `Search the enabled sources and download the selected result.

The result is chosen with --index (1-based, over the merged result list).
By default the file is written to the current directory; --output selects
another directory and --stdout streams the raw bytes instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			sources, err := parseSources(sourceNames)
			if err != nil {
				return err
			}

			agg, err := newAggregator(configDir, logPath)
			if err != nil {
				return err
			}
			defer agg.Close()

			results, err := agg.Search(cmd.Context(), query, sources, 0)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return fmt.Errorf("no results found for %q", query)
			}
			if index < 1 || index > len(results) {
				return fmt.Errorf("--index %d out of range (1-%d)", index, len(results))
			}

			selected := results[index-1]
			log.Debug().
				Str("source", string(selected.Source)).
				Str("title", selected.Book.Title).
				Msg("Downloading selected result")

			outcome, err := agg.Download(cmd.Context(), selected.Handle, outputDir, toStdout)
			if err != nil {
				return err
			}

			if !outcome.Success {
				cmd.Println(outcome.Error)
				return nil
			}

			if toStdout {
				if _, err := os.Stdout.Write(outcome.Content); err != nil {
					return fmt.Errorf("failed to write to stdout: %w", err)
				}
				return nil
			}

			cmd.Printf("Saved %s (%d bytes) to %s\n", outcome.FileName, outcome.FileSize, outcome.FilePath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")
	command.Flags().StringSliceVar(&sourceNames, "sources", nil, "comma-separated sources to query (default: all enabled)")
	command.Flags().IntVar(&index, "index", 1, "1-based index of the search result to download")
	command.Flags().StringVar(&outputDir, "output", ".", "directory to save the file in")
	command.Flags().BoolVar(&toStdout, "stdout", false, "write the file contents to stdout instead of disk")

	return command
}

func RunInfoCommand() *cobra.Command {
	var (
		configDir   string
		logPath     string
		sourceNames []string
		index       int
	)

	var command = &cobra.Command{
		Use:   "info <query>",
		Short: "Show detailed metadata for one search result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			sources, err := parseSources(sourceNames)
			if err != nil {
				return err
			}

			agg, err := newAggregator(configDir, logPath)
			if err != nil {
				return err
			}
			defer agg.Close()

			results, err := agg.Search(cmd.Context(), query, sources, 0)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return fmt.Errorf("no results found for %q", query)
			}
			if index < 1 || index > len(results) {
				return fmt.Errorf("--index %d out of range (1-%d)", index, len(results))
			}

			selected := results[index-1]
			meta := agg.BookInfo(cmd.Context(), selected.Handle)
			if meta == nil {
				// Fall back to what the search already returned.
				meta = &selected.Book
			}

			cmd.Printf("[%s]\n", selected.Source)
			printMetadata(cmd, meta)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")
	command.Flags().StringSliceVar(&sourceNames, "sources", nil, "comma-separated sources to query (default: all enabled)")
	command.Flags().IntVar(&index, "index", 1, "1-based index of the search result to inspect")

	return command
}

func RunTestCommand() *cobra.Command {
	var (
		configDir   string
		logPath     string
		sourceNames []string
	)

	var command = &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to the enabled sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := parseSources(sourceNames)
			if err != nil {
				return err
			}

			agg, err := newAggregator(configDir, logPath)
			if err != nil {
				return err
			}
			defer agg.Close()

			if len(sources) == 0 {
				sources = agg.EnabledSources()
			}

			failures := 0
			for _, s := range sources {
				if !agg.IsEnabled(s) {
					cmd.Printf("%-15s not enabled\n", s)
					failures++
					continue
				}
				if agg.TestConnection(cmd.Context(), s) {
					cmd.Printf("%-15s OK\n", s)
				} else {
					cmd.Printf("%-15s FAILED\n", s)
					failures++
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d source(s) unreachable", failures)
			}
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")
	command.Flags().StringSliceVar(&sourceNames, "sources", nil, "comma-separated sources to test (default: all enabled)")

	return command
}

func RunSourcesCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "sources",
		Short: "List sources and whether each is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			agg, err := newAggregator(configDir, logPath)
			if err != nil {
				return err
			}
			defer agg.Close()

			for _, s := range domain.AllSources() {
				state := "disabled"
				if agg.IsEnabled(s) {
					state = "enabled"
				}
				cmd.Printf("%-15s %s\n", s, state)
			}
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without contacting any source.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/shelfdex/config.toml
- Windows: %APPDATA%\shelfdex\config.toml

You can specify either a directory path or a direct file path:
- Directory: shelfdex generate-config --config-dir /path/to/config/
- File: shelfdex generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of shelfdex",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}
