package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/call-screen/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample callers",
		Long:  "Insert the sample callers into an empty store. With --force the samples replace any records sharing their numbers.",
		Run:   runSeed,
	}

	cmd.Flags().Bool("force", false, "Upsert the samples even if the store is not empty")

	RootCmd.AddCommand(cmd)
}

func runSeed(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")

	// Open without the Opener so the bootstrap result is visible here.
	s, err := store.NewSQLiteStore(getDBPath())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	seeded, err := s.BootstrapSeed(cmd.Context())
	if err != nil {
		exitErr("seed", err)
	}
	if !seeded && force {
		if _, err := s.Import(cmd.Context(), store.SeedCallers); err != nil {
			exitErr("seed", err)
		}
		seeded = true
	}

	fmt.Printf(`{"ok":true,"seeded":%t}`+"\n", seeded)
}
