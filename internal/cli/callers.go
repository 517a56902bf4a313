package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rcliao/call-screen/internal/model"
	"github.com/rcliao/call-screen/internal/phone"
	"github.com/rcliao/call-screen/internal/store"
)

func init() {
	callersCmd := &cobra.Command{
		Use:   "callers",
		Short: "Manage the caller reputation store",
	}

	putCmd := &cobra.Command{
		Use:   "put [number]",
		Short: "Insert or replace a caller record",
		Args:  cobra.ExactArgs(1),
		Run:   runCallersPut,
	}
	putCmd.Flags().String("name", "", "Caller name")
	putCmd.Flags().String("company", "", "Caller company")
	putCmd.Flags().Bool("spam", false, "Mark the caller as spam")

	getCmd := &cobra.Command{
		Use:   "get [number]",
		Short: "Show a caller record",
		Args:  cobra.ExactArgs(1),
		Run:   runCallersGet,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all caller records",
		Run:   runCallersList,
	}
	listCmd.Flags().Bool("spam", false, "Only spam callers")

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search callers by number, name or company",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCallersSearch,
	}
	searchCmd.Flags().Bool("spam", false, "Only spam callers")
	searchCmd.Flags().IntP("limit", "l", 20, "Max results")

	callersCmd.AddCommand(putCmd, getCmd, listCmd, searchCmd)
	RootCmd.AddCommand(callersCmd)
}

func runCallersPut(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")
	company, _ := cmd.Flags().GetString("company")
	spam, _ := cmd.Flags().GetBool("spam")

	rec := model.CallerRecord{
		PhoneNumber: phone.NormalizeString(args[0]),
		Name:        model.StringPtr(strings.TrimSpace(name)),
		Company:     model.StringPtr(strings.TrimSpace(company)),
		IsSpam:      spam,
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Upsert(cmd.Context(), rec); err != nil {
		exitErr("put", err)
	}
	printCallers([]model.CallerRecord{rec}, true)
}

func runCallersGet(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.Lookup(cmd.Context(), phone.NormalizeString(args[0]))
	if err != nil {
		exitErr("get", err)
	}
	printCallers([]model.CallerRecord{*rec}, true)
}

func runCallersList(cmd *cobra.Command, args []string) {
	spamOnly, _ := cmd.Flags().GetBool("spam")

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	callers, err := s.ListAll(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}
	if spamOnly {
		filtered := callers[:0]
		for _, c := range callers {
			if c.IsSpam {
				filtered = append(filtered, c)
			}
		}
		callers = filtered
	}
	printCallers(callers, false)
}

func runCallersSearch(cmd *cobra.Command, args []string) {
	spamOnly, _ := cmd.Flags().GetBool("spam")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), store.SearchParams{
		Query:    strings.Join(args, " "),
		SpamOnly: spamOnly,
		Limit:    limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	printCallers(results, false)
}

// printCallers prints records as JSON, or as a table with --format text.
// single prints one JSON object instead of an array.
func printCallers(callers []model.CallerRecord, single bool) {
	if textOutput() {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NUMBER\tNAME\tCOMPANY\tSPAM")
		for _, c := range callers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", c.PhoneNumber, model.Deref(c.Name), model.Deref(c.Company), c.IsSpam)
		}
		w.Flush()
		return
	}

	if single && len(callers) == 1 {
		printJSON(callers[0])
		return
	}
	if callers == nil {
		callers = []model.CallerRecord{}
	}
	printJSON(callers)
}
