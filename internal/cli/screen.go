package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/call-screen/internal/calllog"
	"github.com/rcliao/call-screen/internal/model"
	"github.com/rcliao/call-screen/internal/screening"
)

func init() {
	cmd := &cobra.Command{
		Use:   "screen [number]",
		Short: "Screen one incoming call",
		Long:  "Screen one incoming call and print its disposition. Use --withheld for a caller without a number.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runScreen,
	}

	cmd.Flags().Bool("withheld", false, "Caller withheld their number")

	RootCmd.AddCommand(cmd)
}

type screenOutput struct {
	Disposition model.Disposition   `json:"disposition"`
	Response    model.CallResponse  `json:"response"`
	Entry       *model.CallLogEntry `json:"entry,omitempty"`
}

func runScreen(cmd *cobra.Command, args []string) {
	withheld, _ := cmd.Flags().GetBool("withheld")

	var ev model.IncomingCallEvent
	switch {
	case withheld && len(args) > 0:
		exitErr("screen", fmt.Errorf("--withheld takes no number"))
	case withheld:
	case len(args) == 1:
		ev.RawNumber = &args[0]
	default:
		exitErr("screen", fmt.Errorf("number is required (or --withheld)"))
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stream := calllog.NewStream(nil)
	defer stream.Close()

	// A one-shot process exits before a deferred lookup could finish.
	opts := cfg.EngineOptions(nil)
	opts.Policy = screening.PolicyAwait
	engine := screening.New(s, stream, opts)
	defer engine.Close()

	res := engine.ScreenCall(cmd.Context(), ev)

	if textOutput() {
		number := "withheld"
		name := ""
		if res.Entry != nil {
			if res.Entry.PhoneNumber != nil {
				number = *res.Entry.PhoneNumber
			}
			name = strings.TrimSpace(model.Deref(res.Entry.CallerName) + " " + model.Deref(res.Entry.CallerCompany))
		}
		fmt.Printf("%s\t%s\t%s\n", res.Disposition, number, name)
		return
	}

	printJSON(screenOutput{
		Disposition: res.Disposition,
		Response:    res.Disposition.Response(),
		Entry:       res.Entry,
	})
}
