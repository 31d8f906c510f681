package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperspacedb/hyperspace/pkg/commitlog"
)

var dumpLogCmd = &cobra.Command{
	Use:   "dump-log <directory>",
	Short: "Dump commit log fragment metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDumpLog,
}

func runDumpLog(cmd *cobra.Command, args []string) error {
	fragments, err := commitlog.DumpMetadata(commitlog.LocalFS{}, args[0])
	if err != nil {
		return fmt.Errorf("failed to scan commit log: %w", err)
	}

	for _, frag := range fragments {
		fmt.Printf("LOG FRAGMENT num=%d name=%q timestamp=%d codec=%s\n",
			frag.Num, frag.Path, frag.Timestamp, frag.Codec)
	}
	return nil
}
