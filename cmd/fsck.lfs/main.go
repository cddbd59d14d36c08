// Command fsck.lfs checks an LFS volume for structural consistency
// without repairing it.
package main

import (
	"fmt"
	"os"

	"github.com/lionxlover/lfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:   "fsck.lfs PATH",
		Short: "Check an LFS volume for consistency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := lfs.Fsck(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("state:           %s\n", report.State)
			fmt.Printf("inodes checked:  %d\n", report.InodesChecked)
			if report.JournalEntriesPending > 0 {
				fmt.Printf("journal pending: %d\n", report.JournalEntriesPending)
			}
			if len(report.Problems) == 0 {
				fmt.Println("clean: no problems found")
				return nil
			}
			for _, p := range report.Problems {
				fmt.Println(p)
			}
			os.Exit(1)
			return nil
		},
	}

	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("fsck.lfs: failed")
		os.Exit(2)
	}
}
