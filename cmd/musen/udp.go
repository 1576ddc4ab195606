package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/musen/udp"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <message>...",
	Short: "Send messages as UDP datagrams to the configured hosts",
	Long: `Send messages to every configured host on the UDP port. With --batch
all messages travel in one datagram joined by the delimiter.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("port") {
			cfg.UDP.Port, _ = flags.GetUint16("port")
		}
		if flags.Changed("host") {
			cfg.UDP.Hosts, _ = flags.GetStringSlice("host")
		}
		if flags.Changed("broadcast") {
			cfg.UDP.Broadcast, _ = flags.GetBool("broadcast")
		}
		if flags.Changed("delimiter") {
			cfg.UDP.Delimiter, _ = flags.GetString("delimiter")
		}
		batch, _ := flags.GetBool("batch")
		if err := cfg.Validate(); err != nil {
			return err
		}

		b, err := udp.NewBroadcaster(cfg.UDP.Broadcaster(log))
		if err != nil {
			return err
		}
		for _, host := range cfg.UDP.Hosts[min(1, len(cfg.UDP.Hosts)):] {
			if err := b.AddTargetHost(host); err != nil {
				return err
			}
		}

		if err := b.Connect(); err != nil {
			return err
		}
		defer b.Disconnect()

		if batch {
			n, err := b.SendStrings(args, cfg.UDP.Delimiter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes\n", n)
			return nil
		}

		total := 0
		for _, msg := range args {
			n, err := b.Send(msg)
			if err != nil {
				return err
			}
			total += n
		}

		fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes\n", total)
		return nil
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print UDP datagrams received on the configured port",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("ip") {
			cfg.UDP.IP, _ = flags.GetString("ip")
		}
		if flags.Changed("port") {
			cfg.UDP.Port, _ = flags.GetUint16("port")
		}
		if flags.Changed("length") {
			cfg.UDP.BufferLength, _ = flags.GetInt("length")
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		var delimiter string
		if split, _ := flags.GetBool("split"); split {
			delimiter = cfg.UDP.Delimiter
		}

		l := udp.NewListener(cfg.UDP.Listener(log))
		if err := l.Connect(); err != nil {
			return err
		}
		defer l.Disconnect()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", l.Address())
		err := printDatagrams(ctx, cmd, l, cfg.UDP.BufferLength, delimiter)

		for _, sender := range l.RecentSenders() {
			fmt.Fprintf(cmd.OutOrStdout(), "seen %s\n", sender)
		}

		return ignoreCanceled(err)
	},
}

func init() {
	broadcastCmd.Flags().Uint16("port", 0, "destination UDP port")
	broadcastCmd.Flags().StringSlice("host", nil, "destination host IPs (repeatable)")
	broadcastCmd.Flags().Bool("broadcast", false, "also send to every interface broadcast address")
	broadcastCmd.Flags().String("delimiter", "", "delimiter used with --batch")
	broadcastCmd.Flags().Bool("batch", false, "send all messages in one datagram")

	listenCmd.Flags().String("ip", "", "local IP to bind (default all interfaces)")
	listenCmd.Flags().Uint16("port", 0, "UDP port to bind")
	listenCmd.Flags().Int("length", 0, "receive buffer length per datagram")
	listenCmd.Flags().Bool("split", false, "print each delimited field on its own line")
}
