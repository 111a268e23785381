package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	gos3 "bptools/pkg/s3"
	"bptools/services/bundler"
)

func newBundlesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "Web-asset bundle build and publish operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBundlesBuildCommand())
	cmd.AddCommand(newBundlesPublishCommand())
	return cmd
}

func newBundlesBuildCommand() *cobra.Command {
	var (
		sourceDir string
		output    string
		name      string
		version   string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create a signed bundle from a web-asset directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := bundler.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = bundler.Build(ctx, bundler.BuildConfig{
				SourceDir: sourceDir,
				Output:    output,
				Name:      name,
				Version:   version,
				Signer:    signer,
				Stdout:    cmd.OutOrStdout(),
			})
			return err
		},
	}

	cmd.Flags().StringVar(&sourceDir, "dir", "resources/webapps", "Directory holding the web assets")
	cmd.Flags().StringVar(&output, "output", "", "Destination bundle file (zip)")
	cmd.Flags().StringVar(&name, "name", "", "Bundle name (defaults to the directory name)")
	cmd.Flags().StringVar(&version, "version", "", "Release recorded in the manifest")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newBundlesPublishCommand() *cobra.Command {
	var (
		bundleFile string
		bucket     string
		prefix     string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Verify a signed bundle and upload its files to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := bundler.NewSignerFromEnv()
			if err != nil {
				return err
			}
			s3Client, err := gos3.NewClientFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			if bucket == "" {
				bucket = os.Getenv("S3_BUCKET")
			}
			_, err = bundler.Publish(ctx, bundler.PublishConfig{
				BundlePath: bundleFile,
				Bucket:     bucket,
				Prefix:     prefix,
				Uploader:   s3Client,
				Signer:     signer,
				Stdout:     cmd.OutOrStdout(),
			})
			return err
		},
	}

	cmd.Flags().StringVar(&bundleFile, "file", "", "Path to the bundle zip")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket (defaults to S3_BUCKET)")
	cmd.Flags().StringVar(&prefix, "prefix", "webapps", "Key prefix inside the bucket")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
