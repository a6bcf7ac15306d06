package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"backer-go/internal/app"
	"backer-go/internal/backer"
	"backer-go/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a BackerApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "scan", "tag-add").
func newApp(operation string) (*app.BackerApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewBackerApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid file id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatDate(f *backer.File) string {
	if !f.Date.Valid {
		return "(no date)          "
	}
	return f.Date.Time.Format(backer.DateTimeLayout)
}

var rootCmd = &cobra.Command{
	Use:          "backer",
	Short:        "Photo archive catalog",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Catalog:  %s\n", cfg.Catalog.Path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Log Level: %s\n", cfg.LogLevel)
		fmt.Printf("Catalog:   %s %s\n", cfg.Catalog.Type, cfg.Catalog.Path)
		fmt.Printf("Thumbnail: %dx%d q%d\n", cfg.Thumbnail.Width, cfg.Thumbnail.Height, cfg.Thumbnail.Quality)
		fmt.Println("Markers:")
		for _, m := range cfg.Markers.Disk {
			fmt.Printf("  %s\n", m)
		}
		fmt.Println("Date rules:")
		for marker, rules := range cfg.DatePath {
			for _, r := range rules {
				fmt.Printf("  %s  %s -> %s\n", marker, r.Path, r.Date)
			}
		}
		return nil
	},
}

func printResults(results []backer.TreeResult) error {
	failed := 0
	for _, r := range results {
		switch r.Status() {
		case backer.StatusUnavailable:
			fmt.Printf("%-12s %s\n", r.Status(), r.MarkerPath)
		case backer.StatusError:
			failed++
			fmt.Printf("%-12s %s: %v\n", r.Status(), r.MarkerPath, r.Err)
		default:
			s := r.Stats
			fmt.Printf("%-12s %s  ingested:%s known:%s skipped:%s removed:%s mismatched:%s\n",
				r.Status(), r.Tree.Marker,
				humanize.Comma(int64(s.Ingested)),
				humanize.Comma(int64(s.Known)),
				humanize.Comma(int64(s.Skipped)),
				humanize.Comma(int64(s.Removed)),
				humanize.Comma(int64(s.Mismatched)),
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d tree(s) failed", failed)
	}
	return nil
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Ingest and reconcile all marker trees",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")

		a, err := newApp("scan")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Scan(refresh)
		if err != nil {
			return err
		}
		fmt.Println()
		return printResults(results)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Drop catalogued locations whose files are gone",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("reconcile")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Reconcile()
		if err != nil {
			return err
		}
		fmt.Println()
		return printResults(results)
	},
}

var datepathsCmd = &cobra.Command{
	Use:   "datepaths",
	Short: "Show the dates path rules give each file",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("datepaths")
		if err != nil {
			return err
		}
		defer a.Close()

		seq, err := a.PreviewDates()
		if err != nil {
			return err
		}
		for p, err := range seq {
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				continue
			}
			date := "-"
			if p.Date.Valid {
				date = p.Date.Time.Format(backer.DateTimeLayout)
			}
			fmt.Printf("%s\t%s\t%s\n", p.Marker, date, p.RelativePath)
		}
		return nil
	},
}

var locationsCmd = &cobra.Command{
	Use:   "locations MARKER_FILE",
	Short: "List catalogued files of a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("locations")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, locs, err := a.Locations(args[0])
		if err != nil {
			return err
		}
		if len(locs) == 0 {
			fmt.Printf("No locations catalogued for %s.\n", tree.Marker)
			return nil
		}
		for _, l := range locs {
			fmt.Printf("%s  %s\n", l.Hash, l.RelativePath)
		}
		return nil
	},
}

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "List visible files in date order",
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("gallery")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, total, err := a.Gallery(offset, limit)
		if err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("#%-6d %s  %s  %8s\n", e.File.ID, formatDate(e.File), e.File.Hash[:12], humanize.Bytes(uint64(len(e.File.Thumbnail))))
			for _, l := range e.Locations {
				fmt.Printf("         %s:%s\n", l.Marker, l.RelativePath)
			}
		}
		fmt.Printf("%d-%d of %s visible file(s)\n", offset+1, offset+len(entries), humanize.Comma(int64(total)))
		return nil
	},
}

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail ID OUT.jpg",
	Short: "Write a stored thumbnail to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[:1])
		if err != nil {
			return err
		}

		a, err := newApp("thumbnail")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ExportThumbnail(ids[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s to %s\n", humanize.Bytes(uint64(n)), args[1])
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags ID...",
	Short: "Show which tags a selection of files carries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp("tags")
		if err != nil {
			return err
		}
		defer a.Close()

		states, err := a.TagSelection(ids)
		if err != nil {
			return err
		}
		for _, s := range states {
			hidden := ""
			if s.Hidden {
				hidden = "  [hidden]"
			}
			fmt.Printf("%-5s  %s%s\n", s.Selection, s.Name, hidden)
		}
		return nil
	},
}

// tag command
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hidden, _ := cmd.Flags().GetBool("hidden")

		a, err := newApp("tag-create")
		if err != nil {
			return err
		}
		defer a.Close()

		tag, err := a.CreateTag(args[0], hidden)
		if err != nil {
			return err
		}
		fmt.Printf("Tag %q (id %d, hidden=%v)\n", tag.Name, tag.ID, tag.Hidden)
		return nil
	},
}

var tagAddCmd = &cobra.Command{
	Use:   "add NAME ID...",
	Short: "Tag files",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}

		a, err := newApp("tag-add")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.TagFiles(args[0], ids); err != nil {
			return err
		}
		fmt.Printf("Tagged %d file(s) with %q\n", len(ids), args[0])
		return nil
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove NAME ID...",
	Short: "Untag files",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}

		a, err := newApp("tag-remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.UntagFiles(args[0], ids); err != nil {
			return err
		}
		fmt.Printf("Removed %q from %d file(s)\n", args[0], len(ids))
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("tag-list")
		if err != nil {
			return err
		}
		defer a.Close()

		tags, err := a.Tags()
		if err != nil {
			return err
		}
		for _, t := range tags {
			hidden := ""
			if t.Hidden {
				hidden = "  [hidden]"
			}
			fmt.Printf("%4d  %s%s\n", t.ID, t.Name, hidden)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View catalog operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-12s  %s (%s)  %-8s  %s\n",
				r.ID[:8],
				r.Operation,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				humanize.Time(r.StartedAt),
				r.Status,
				duration,
			)
		}
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot DEST",
	Short: "Write a consistent copy of the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		size, err := a.Snapshot(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Catalog snapshot written to %s (%s)\n", args[0], humanize.Bytes(uint64(size)))
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// tag subcommands
	tagCmd.AddCommand(tagCreateCmd)
	tagCreateCmd.Flags().Bool("hidden", false, "Hide tagged files from the gallery")
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagRemoveCmd)
	tagCmd.AddCommand(tagListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Bool("refresh", false, "Re-ingest known files after reconciliation")
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(datepathsCmd)
	rootCmd.AddCommand(locationsCmd)
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.Flags().Int("offset", 0, "Number of files to skip")
	galleryCmd.Flags().IntP("limit", "n", 50, "Maximum number of files to show")
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(snapshotCmd)
}
