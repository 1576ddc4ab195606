package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/musen/tcpclient"
)

var clientCmd = &cobra.Command{
	Use:   "client <message>...",
	Short: "Send messages to a TCP server and print the replies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("ip") {
			cfg.Client.IP, _ = flags.GetString("ip")
		}
		if flags.Changed("port") {
			cfg.Client.Port, _ = flags.GetUint16("port")
		}
		if flags.Changed("length") {
			cfg.Client.BufferLength, _ = flags.GetInt("length")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		c, err := tcpclient.NewClient(cfg.Client.TCPClient(log))
		if err != nil {
			return err
		}
		defer c.Disconnect()

		out := cmd.OutOrStdout()
		for _, msg := range args {
			if _, err := c.SendString(msg); err != nil {
				return fmt.Errorf("send %q: %w", msg, err)
			}

			reply := ""
			for i := 0; i < cfg.Client.Rounds && reply == "" && c.IsConnected(); i++ {
				reply = c.ReceiveString(cfg.Client.BufferLength)
			}

			if reply == "" {
				if !c.IsConnected() {
					return fmt.Errorf("server %s closed the connection", c.Address())
				}
				return fmt.Errorf("no reply to %q from %s", msg, c.Address())
			}

			fmt.Fprintln(out, reply)
		}

		return nil
	},
}

func init() {
	clientCmd.Flags().String("ip", "", "server IP")
	clientCmd.Flags().Uint16("port", 0, "server TCP port")
	clientCmd.Flags().Int("length", 0, "receive buffer length per message")
}
