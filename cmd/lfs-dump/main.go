// Command lfs-dump prints the superblock, and optionally one inode
// record, of an LFS volume.
package main

import (
	"os"

	"github.com/lionxlover/lfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var inode uint32

	cmd := &cobra.Command{
		Use:   "lfs-dump PATH",
		Short: "Print the superblock (and optionally one inode) of an LFS volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			sb, err := lfs.ReadSuperblockAt(path)
			if err != nil {
				return err
			}
			lfs.DumpSuperblock(os.Stdout, sb)

			if inode != 0 {
				rec, err := lfs.ReadInodeAt(path, sb, inode)
				if err != nil {
					return err
				}
				os.Stdout.WriteString("\n")
				lfs.DumpInode(os.Stdout, inode, rec)
			}
			return nil
		},
	}

	cmd.Flags().Uint32Var(&inode, "inode", 0, "also dump this inode number")

	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("lfs-dump: failed")
		os.Exit(1)
	}
}
