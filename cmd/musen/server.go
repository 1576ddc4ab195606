package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/musen/message"
	"github.com/cyberinferno/musen/tcpserver"
	"github.com/cyberinferno/musen/udp"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the TCP echo server",
	Long: `Run a TCP server that echoes every received message back to its
sender. With --udp, datagrams arriving on the UDP port are printed too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("ip") {
			cfg.Server.IP, _ = flags.GetString("ip")
		}
		if flags.Changed("port") {
			cfg.Server.Port, _ = flags.GetUint16("port")
		}
		if flags.Changed("length") {
			cfg.Server.BufferLength, _ = flags.GetInt("length")
		}
		withUDP, _ := flags.GetBool("udp")
		if err := cfg.Validate(); err != nil {
			return err
		}

		srv, err := tcpserver.NewServer(cfg.Server.TCPServer(log))
		if err != nil {
			return err
		}
		defer srv.Close()

		pool := tcpserver.NewPool()
		defer pool.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Serve(gctx, pool, cfg.Server.BufferLength, tcpserver.EchoHandler)
		})

		if withUDP {
			l := udp.NewListener(cfg.UDP.Listener(log))
			if err := l.Connect(); err != nil {
				stop()
				_ = g.Wait()
				return err
			}
			defer l.Disconnect()

			g.Go(func() error {
				return printDatagrams(gctx, cmd, l, cfg.UDP.BufferLength, "")
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", srv.Address())
		return ignoreCanceled(g.Wait())
	},
}

// printDatagrams writes every datagram l receives to the command output
// until ctx is done. A non-empty delimiter prints each field on its own line.
func printDatagrams(ctx context.Context, cmd *cobra.Command, l *udp.Listener, length int, delimiter string) error {
	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, from, ok := l.ReceiveFrom(length)
		if !ok {
			continue
		}

		if delimiter == "" {
			fmt.Fprintf(out, "%s: %s\n", from, msg)
			continue
		}

		for _, field := range message.Split(msg, delimiter) {
			fmt.Fprintf(out, "%s: %s\n", from, field)
		}
	}
}

func init() {
	serverCmd.Flags().String("ip", "", "local IP to listen on (default all interfaces)")
	serverCmd.Flags().Uint16("port", 0, "TCP port to listen on")
	serverCmd.Flags().Int("length", 0, "receive buffer length per message")
	serverCmd.Flags().Bool("udp", false, "also print datagrams received on the UDP port")
}
