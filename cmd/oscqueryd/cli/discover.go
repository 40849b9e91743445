package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/defektu/node-oscquery/discovery"
)

// NewDiscover creates the discover command.
func NewDiscover() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the network for OSCQuery services",
		Long: `Browse mDNS for OSCQuery services and print each one's tree summary
as it's discovered, for --discover-seconds before exiting.`,
		RunE: runDiscover,
	}
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Println(Banner())
	fmt.Println(subtitleStyle.Render(fmt.Sprintf("Browsing for %ds...", discoverTimeout)))
	fmt.Println()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(discoverTimeout)*time.Second)
	defer cancel()

	client := discovery.New()
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}

	for ev := range client.Events() {
		switch ev.Kind {
		case discovery.EventUp:
			fmt.Println(successStyle.Render("+ " + ev.Service.Name))
			fmt.Println(statusLine("  address", fmt.Sprintf("%s:%d", ev.Service.Address, ev.Service.Port)))
			if ev.Service.Tree != nil {
				methods := 0
				for range ev.Service.Tree.MethodGenerator() {
					methods++
				}
				fmt.Println(statusLine("  methods", fmt.Sprintf("%d", methods)))
			}
		case discovery.EventDown:
			fmt.Println(infoStyle.Render("- " + ev.Service.Name))
		case discovery.EventError:
			fmt.Println(errorStyle.Render("! " + ev.Err.Error()))
		}
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Done."))
	return nil
}
