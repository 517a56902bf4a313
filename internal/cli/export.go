package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export caller records as JSON",
		Long:  "Export every caller record as a JSON array, in the format import expects.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	callers, err := s.ExportAll(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	printCallers(callers, false)
}
