package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acm19/shrink/internal/config"
	"github.com/acm19/shrink/internal/logger"
	"github.com/acm19/shrink/internal/server"
	"github.com/acm19/shrink/internal/shrink"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:     "shrink",
	Short:   "Resize and optimise the images of a media library",
	Long:    `Shrink keeps a media library within size limits: it resizes oversized images in place, converts BMP and PNG files to JPEG and removes retained originals.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logger.SetDebug(true)
		}
	},
}

var indexCmd = &cobra.Command{
	Use:   "index DIRECTORY",
	Short: "Register image files in the library",
	Long:  `Walks a directory and adds every image file that is not already in the library.`,
	Args:  cobra.ExactArgs(1),
	Run:   runIndex,
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Copy an image into the library and process it",
	Long:  `Copies a file into the library directory, registers it with the given source and runs the resize pipeline on it.`,
	Args:  cobra.ExactArgs(1),
	Run:   runImport,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List images that need resizing",
	Long:  `Lists up to the configured cap of images that need resizing or conversion, newest first.`,
	Args:  cobra.NoArgs,
	Run:   runScan,
}

var resizeCmd = &cobra.Command{
	Use:   "resize ID",
	Short: "Resize a single image",
	Args:  cobra.ExactArgs(1),
	Run:   runResize,
}

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Resize every image in the library",
	Long:  `Walks the whole library, newest first, and resizes every image larger than the configured limits.`,
	Args:  cobra.NoArgs,
	Run:   runBulk,
}

var removeOriginalCmd = &cobra.Command{
	Use:   "remove-original ID",
	Short: "Delete the retained full-size original of an image",
	Args:  cobra.ExactArgs(1),
	Run:   runRemoveOriginal,
}

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or control the bulk resume cursor",
}

var cursorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resume cursor",
	Args:  cobra.NoArgs,
	Run:   runCursor,
}

var cursorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the resume cursor",
	Args:  cobra.NoArgs,
	Run:   runCursor,
}

var cursorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running bulk job to stop before its next image",
	Args:  cobra.NoArgs,
	Run:   runCursor,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect the resize settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy for each source",
	Args:  cobra.NoArgs,
	Run:   runSettingsShow,
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Args:  cobra.NoArgs,
	Run:   runSettingsValidate,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	Run:   runServe,
}

var (
	importSource string
	resumeBefore uint64
	scanDetails  bool
	noPrompt     bool
	resumable    bool
	pause        string
	useTUI       bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// Import command flags
	importCmd.Flags().StringVar(&importSource, "source", "post", "Upload context of the image (post, library, other)")

	// Scan command flags
	scanCmd.Flags().Uint64Var(&resumeBefore, "resume-before", 0, "Only consider images with an ID below this one")
	scanCmd.Flags().BoolVar(&scanDetails, "details", false, "Print dimensions and file names")

	// Bulk command flags
	bulkCmd.Flags().BoolVar(&noPrompt, "noprompt", false, "Do not ask for confirmation")
	bulkCmd.Flags().BoolVar(&resumable, "resumable", false, "Resume from the stored cursor and pause between images")
	bulkCmd.Flags().StringVar(&pause, "pause", "", "Delay between images in resumable mode (default from config)")
	bulkCmd.Flags().BoolVar(&useTUI, "tui", false, "Show an interactive progress view (implies --noprompt for each image)")

	cursorCmd.AddCommand(cursorStatusCmd, cursorResetCmd, cursorStopCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsValidateCmd)
	rootCmd.AddCommand(indexCmd, importCmd, scanCmd, resizeCmd, bulkCmd, removeOriginalCmd, cursorCmd, settingsCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustApp wires the application or exits.
func mustApp(ctx context.Context) *app {
	a, err := newApp(ctx, configPath)
	if err != nil {
		logger.Error("Failed to initialise", "config", configPath, "error", err)
		os.Exit(1)
	}
	return a
}

// mustID parses an image identifier argument or exits.
func mustID(arg string) uint64 {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err == nil {
		err = shrink.RequireID(id)
	}
	if err != nil {
		logger.Error("Invalid image ID", "value", arg, "error", shrink.ErrMissingID)
		os.Exit(1)
	}
	return id
}

func runIndex(cmd *cobra.Command, args []string) {
	dir := args[0]
	if info, err := os.Stat(dir); err != nil {
		logger.Error("Directory does not exist", "directory", dir, "error", err)
		os.Exit(1)
	} else if !info.IsDir() {
		logger.Error("Path is not a directory", "path", dir)
		os.Exit(1)
	}

	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	stats, err := a.indexer.Index(ctx, dir, shrink.SourceLibrary)
	if err != nil {
		logger.Error("Index failed", "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d images (%d already known, %d skipped)\n", stats.Added, stats.Known, stats.Skipped)
}

func runImport(cmd *cobra.Command, args []string) {
	source, err := shrink.ParseSource(importSource)
	if err != nil {
		logger.Error("Invalid source", "value", importSource, "error", err)
		os.Exit(1)
	}

	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	rec, outcome, err := a.engine.Import(ctx, args[0], source)
	if err != nil {
		logger.Error("Import failed", "file", args[0], "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s as image %d\n", rec.Path, rec.ID)
	printOutcome(cmd, outcome)
}

func runScan(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	out := cmd.OutOrStdout()
	if !scanDetails {
		ids, err := a.scanner.Scan(ctx, resumeBefore)
		if err != nil {
			logger.Error("Scan failed", "error", err)
			os.Exit(1)
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return
	}

	found, err := a.scanner.ScanDetailed(ctx, resumeBefore)
	if err != nil {
		logger.Error("Scan failed", "error", err)
		os.Exit(1)
	}
	for _, ins := range found {
		fmt.Fprintf(out, "%d\t%dx%d\t%s\n", ins.ID, ins.Width, ins.Height, ins.File)
	}
}

func runResize(cmd *cobra.Command, args []string) {
	id := mustID(args[0])

	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	outcome := a.engine.ResizeByID(ctx, id)
	printOutcome(cmd, outcome)
	if !outcome.Success {
		os.Exit(1)
	}
}

func runRemoveOriginal(cmd *cobra.Command, args []string) {
	id := mustID(args[0])

	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	_, removal, err := a.remover.RemoveOriginal(ctx, id)
	if err != nil {
		logger.Error("Remove original failed", "id", id, "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Image %d: %s\n", id, removal)
}

func runCursor(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	var err error
	switch cmd.Name() {
	case "reset":
		err = a.tracker.Reset(ctx)
	case "stop":
		err = a.tracker.Stop(ctx)
	}
	if err != nil {
		logger.Error("Cursor update failed", "error", err)
		os.Exit(1)
	}

	state, err := a.tracker.State(ctx)
	if err != nil {
		logger.Error("Failed to read cursor", "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "resume_id: %d\nstopped: %t\n", state.ResumeID, state.Stopped)
}

func runSettingsShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Failed to load config", "config", configPath, "error", err)
		os.Exit(1)
	}

	policies := map[string]shrink.Policy{}
	for _, source := range []shrink.Source{shrink.SourcePost, shrink.SourceLibrary, shrink.SourceOther} {
		policies[source.String()] = cfg.Settings.Snapshot(source)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(policies); err != nil {
		logger.Error("Failed to print settings", "error", err)
		os.Exit(1)
	}
}

func runSettingsValidate(cmd *cobra.Command, args []string) {
	if _, err := config.Load(configPath); err != nil {
		logger.Error("Configuration is invalid", "config", configPath, "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", configPath)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustApp(ctx)
	defer a.Close()

	if a.cfg.Server.APIKey == "" {
		logger.Warn("No API key configured, every guarded request will be rejected")
	}

	srv := server.New(server.Options{
		APIKey:  a.cfg.Server.APIKey,
		Guard:   shrink.NewGuard(a.cfg.Server.TokenTTL),
		Scanner: a.scanner,
		Engine:  a.engine,
		Remover: a.remover,
		Tracker: a.tracker,
		Pause:   a.cfg.Bulk.Pause,
	})
	if err := srv.ListenAndServe(ctx, a.cfg.Server.Addr); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// printOutcome writes an outcome message to stdout, or as a warning on failure.
func printOutcome(cmd *cobra.Command, outcome shrink.Outcome) {
	if outcome.Success {
		fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Warning: %s\n", outcome.Message)
}
