package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockhoundapp/rockhound/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push local finds and sessions to the remote store",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass",
	Long: `Upload each unsynced find's photo to blob storage, push its row to
the remote store, then rewrite the local row to the remote URL. Safe to
re-run; already-synced finds are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if a.cfg.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is not configured")
		}
		if a.cfg.RemoteDSN == "" {
			return fmt.Errorf("remote_dsn is not configured")
		}
		if a.cfg.DeviceID == "" {
			return fmt.Errorf("device_id is not configured; run 'rh init'")
		}

		uploader, err := syncer.NewS3Uploader(ctx, a.cfg.S3.Region, a.cfg.S3.Bucket, a.cfg.S3.URLBase)
		if err != nil {
			return err
		}

		remote, err := syncer.NewPostgresRemote(ctx, a.cfg.RemoteDSN)
		if err != nil {
			return err
		}
		defer remote.Close()

		rec := syncer.NewReconciler(a.store, uploader, remote, a.cfg.DeviceID, a.logger("sync"))
		summary, err := rec.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Synced %d find(s), skipped %d, failed %d; pushed %d session(s), failed %d\n",
			summary.FindsSynced, summary.FindsSkipped, summary.FindsFailed,
			summary.SessionsPushed, summary.SessionsFailed)

		if summary.FindsFailed > 0 || summary.SessionsFailed > 0 {
			return fmt.Errorf("some items were not synced; re-run to retry")
		}
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncRunCmd)
}
