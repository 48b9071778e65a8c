package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockhoundapp/rockhound/internal/integrity"
)

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Audit the photo store against the catalog",
}

var integrityCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report missing photos and orphan files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		auditor := integrity.NewAuditor(a.store, a.photos, a.logger("integrity"))
		report, err := auditor.Check(ctx)
		if err != nil {
			return err
		}

		printReport(report)
		return nil
	},
}

var (
	cleanOrphans bool
	cleanArchive bool
)

var integrityCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Repair drift found by a fresh audit",
	Long: `Run an audit, then delete orphan files (--orphans) and/or archive
finds whose photo is missing (--archive-missing). Repairs are
best-effort; re-run check afterwards for a fresh view.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if !cleanOrphans && !cleanArchive {
			return fmt.Errorf("nothing to do: pass --orphans and/or --archive-missing")
		}

		auditor := integrity.NewAuditor(a.store, a.photos, a.logger("integrity"))
		report, err := auditor.Check(ctx)
		if err != nil {
			return err
		}

		if cleanOrphans {
			n := auditor.CleanupOrphans(report.OrphanFiles)
			fmt.Printf("Deleted %d orphan file(s)\n", n)
		}
		if cleanArchive {
			n := auditor.ArchiveMissing(ctx, report.MissingPhotos)
			fmt.Printf("Archived %d find(s)\n", n)
		}
		return nil
	},
}

var integrityWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously watch the photo store for drift",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		logger := a.logger("integrity")
		auditor := integrity.NewAuditor(a.store, a.photos, logger)
		watcher, err := integrity.NewWatcher(auditor, a.photos.Dir(), func(r *integrity.Report) {
			logger.Printf("Drift detected: %d missing photo(s), %d orphan file(s)",
				len(r.MissingPhotos), len(r.OrphanFiles))
		}, logger)
		if err != nil {
			return err
		}

		return watcher.Start(ctx)
	},
}

func printReport(r *integrity.Report) {
	fmt.Printf("Checked %d find(s) against %d file(s)\n", r.FindsChecked, r.FilesChecked)
	if r.Clean() {
		fmt.Println("No drift detected.")
		return
	}
	if len(r.MissingPhotos) > 0 {
		fmt.Printf("Missing photos (%d):\n", len(r.MissingPhotos))
		for _, id := range r.MissingPhotos {
			fmt.Printf("  %s\n", id)
		}
	}
	if len(r.OrphanFiles) > 0 {
		fmt.Printf("Orphan files (%d):\n", len(r.OrphanFiles))
		for _, path := range r.OrphanFiles {
			fmt.Printf("  %s\n", path)
		}
	}
}

func init() {
	integrityCleanCmd.Flags().BoolVar(&cleanOrphans, "orphans", false, "delete orphan files")
	integrityCleanCmd.Flags().BoolVar(&cleanArchive, "archive-missing", false, "archive finds with missing photos")

	integrityCmd.AddCommand(integrityCheckCmd)
	integrityCmd.AddCommand(integrityCleanCmd)
	integrityCmd.AddCommand(integrityWatchCmd)
}
