package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/defektu/node-oscquery/node"
	"github.com/defektu/node-oscquery/oscquery"
)

// NewServe creates the serve command.
func NewServe() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an OSCQuery service",
		Long: `Start an OSCQuery service: an HTTP query endpoint, a WebSocket
notification hub, a UDP OSC listener, and an mDNS advertisement, all bound
to the same address/ports unless overridden.`,
		RunE: runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fmt.Println(Banner())

	tree := node.NewTree()
	srv := oscquery.New(tree,
		oscquery.WithHTTPPort(httpPort),
		oscquery.WithBindAddress(bindAddress),
		oscquery.WithRootDescription(rootDescription),
		oscquery.WithServiceName(serviceName),
		oscquery.WithOSCIp(oscIP),
		oscquery.WithOSCPort(oscPort),
		oscquery.WithOSCTransport(oscTransport),
		oscquery.WithWSIp(wsIP),
		oscquery.WithWSPort(wsPort),
		oscquery.WithBroadcast(broadcast),
	)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting OSCQuery service: %w", err)
	}

	fmt.Println(successStyle.Render("OSCQuery service started"))
	fmt.Println(statusLine("HTTP", srv.HTTPAddr()))
	fmt.Println(statusLine("mDNS name", serviceName))
	fmt.Println()
	fmt.Println(subtitleStyle.Render("Press Ctrl+C to stop."))

	<-ctx.Done()

	fmt.Println()
	fmt.Println(infoStyle.Render("Shutting down..."))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping OSCQuery service: %w", err)
	}

	fmt.Println(successStyle.Render("Stopped cleanly."))
	return nil
}
