package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bptools/pkg/telemetry"
	"bptools/services/ffe"
)

func newXML2CotcotCommand(verbose *bool) *cobra.Command {
	var (
		credentialsPath string
		baseURL         string
	)

	cmd := &cobra.Command{
		Use:   "xml2cotcot <export.xml>",
		Short: "Rank a competition export from the federation entry list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger := telemetry.NewLogger("bpctl", os.Stderr, *verbose)

			if credentialsPath == "" {
				p, err := ffe.DefaultCredentialsPath()
				if err != nil {
					return err
				}
				credentialsPath = p
			}
			creds, err := ffe.LoadCredentials(credentialsPath)
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = os.Getenv("FFE_EXTRANET_URL")
			}
			client, err := ffe.NewClient(baseURL)
			if err != nil {
				return err
			}
			converter, err := ffe.NewConverter(client, creds, logger)
			if err != nil {
				return err
			}

			report, err := converter.Convert(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "competition %s: %d ranks, %d fencers without ranking\n",
				report.CompetitionID, report.Ranked, len(report.Missing))
			return nil
		},
	}

	cmd.Flags().StringVar(&credentialsPath, "credentials", "", "INI file with an [FFE] section (defaults to ~/.ffe)")
	cmd.Flags().StringVar(&baseURL, "extranet", "", "Extranet base URL (defaults to FFE_EXTRANET_URL or "+ffe.DefaultBaseURL+")")
	return cmd
}
