package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags)
	Version = "dev"
	Commit  = "unknown"
)

// Flags shared across subcommands, resolved once at Execute.
var (
	httpPort        int
	bindAddress     string
	rootDescription string
	serviceName     string
	oscIP           string
	oscPort         int
	oscTransport    string
	wsIP            string
	wsPort          int
	broadcast       bool

	discoverTimeout int
)

// Execute runs the oscqueryd CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "oscqueryd",
		Short: "OSCQuery server and discovery client",
		Long: `oscqueryd serves an OSCQuery-discoverable method tree over HTTP,
WebSocket, and OSC (UDP), and can browse the network for other
OSCQuery-compatible services.

Get started:
  oscqueryd serve       Start an OSCQuery service
  oscqueryd discover    Browse the network for OSCQuery services`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate("oscqueryd {{.Version}}\n")
	root.Version = Version

	root.PersistentFlags().IntVar(&httpPort, "http-port", 0, "HTTP port (0 = ephemeral)")
	root.PersistentFlags().StringVar(&bindAddress, "bind", "", "Bind address for HTTP/WS/OSC")
	root.PersistentFlags().StringVar(&rootDescription, "description", "root node", "Root node description")
	root.PersistentFlags().StringVar(&serviceName, "name", "OSCQuery", "Advertised mDNS service name")
	root.PersistentFlags().StringVar(&oscIP, "osc-ip", "", "OSC transport address (defaults to --bind)")
	root.PersistentFlags().IntVar(&oscPort, "osc-port", 0, "OSC transport port (defaults to --http-port)")
	root.PersistentFlags().StringVar(&oscTransport, "osc-transport", "UDP", "OSC transport (UDP or TCP)")
	root.PersistentFlags().StringVar(&wsIP, "ws-ip", "", "WebSocket address (defaults to --bind)")
	root.PersistentFlags().IntVar(&wsPort, "ws-port", 0, "WebSocket port (defaults to --http-port)")
	root.PersistentFlags().BoolVar(&broadcast, "broadcast-osc", false, "Re-broadcast inbound OSC messages to WS subscribers")
	root.PersistentFlags().IntVar(&discoverTimeout, "discover-seconds", 5, "How long `discover` browses before exiting")

	root.AddCommand(NewServe())
	root.AddCommand(NewDiscover())

	if err := fang.Execute(ctx, root, fang.WithVersion(Version), fang.WithCommit(Commit)); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[ERROR] "+err.Error()))
		return err
	}
	return nil
}
