package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bptools/pkg/render"
	"bptools/services/packaging"
)

func newPackageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Distribution packaging metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newPackageDebianCommand())
	return cmd
}

func newPackageDebianCommand() *cobra.Command {
	var (
		version      string
		revision     int
		output       string
		maintainer   string
		distribution string
		changes      []string
	)

	cmd := &cobra.Command{
		Use:   "debian",
		Short: "Render debian/control, changelog and copyright",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := render.New()
			if err != nil {
				return err
			}
			meta := packaging.Defaults(version)
			meta.Revision = revision
			meta.Distribution = distribution
			meta.Changes = changes
			meta.Date = time.Now()
			meta.Maintainer = maintainer
			if meta.Maintainer == "" {
				meta.Maintainer = packaging.MaintainerFromEnv()
			}

			written, err := packaging.WriteDebian(engine, meta, output)
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Upstream version")
	cmd.Flags().IntVar(&revision, "revision", 1, "Debian revision")
	cmd.Flags().StringVar(&output, "output", "build/debian", "Output directory")
	cmd.Flags().StringVar(&maintainer, "maintainer", "", "Maintainer as \"Name <email>\" (defaults to DEBFULLNAME/DEBEMAIL)")
	cmd.Flags().StringVar(&distribution, "distribution", "unstable", "Target distribution")
	cmd.Flags().StringArrayVar(&changes, "change", nil, "Changelog entry (repeatable)")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}
