package main

import (
	"github.com/sirupsen/logrus"

	"github.com/spf13/cobra"

	"github.com/duotale/duotale/internal/backups"
)

func backupCommands(b *duotaleInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "start duotale artifact backup",
	}

	cmd.AddCommand(backupToCommands())
	cmd.AddCommand(backupToS3Commands())

	return cmd
}

func backupToCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "drive",
		Run: func(cmd *cobra.Command, args []string) {
			err := backups.BackupArtifacts()
			if err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}

func backupToS3Commands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "s3",
		Run: func(cmd *cobra.Command, args []string) {
			err := backups.ZipUploadToS3()
			if err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}
