package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"permgate/internal/archive"
)

func syncCmd() *cobra.Command {
	var backend, bucket, region, prefix, azureAccountURL string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Archive the decision store's JSONL hierarchy to blob storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			ctx := context.Background()

			var archiver archive.Archiver
			var err error
			switch backend {
			case "s3":
				archiver, err = archive.NewS3Archiver(ctx, region, bucket)
			case "gcs":
				archiver, err = archive.NewGCSArchiver(ctx, bucket)
			case "azure":
				archiver, err = archive.NewAzureBlobArchiver(azureAccountURL, bucket)
			default:
				return fmt.Errorf("unknown --backend %q: must be s3, gcs, or azure", backend)
			}
			if err != nil {
				return err
			}

			count, err := archive.SyncDir(ctx, archiver, dataDir, prefix)
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d files\n", count)
			return err
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "s3", "archival backend: s3, gcs, or azure")
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket or container name (required)")
	cmd.Flags().StringVar(&region, "region", "us-east-1", "AWS region (s3 backend only)")
	cmd.Flags().StringVar(&azureAccountURL, "azure-account-url", "", "Azure storage account URL (azure backend only)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix to archive files under, e.g. a date stamp")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}
