package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fcpd/cmd/fcpd/command/client"
)

var (
	sendAddr         string
	sendCallbackPort int
	sendTimeout      time.Duration
	sendReplies      int
	sendToken        string
)

var sendCmd = &cobra.Command{
	Use:   "send <tag> <keyword> [args...]",
	Short: "Send one FUDI message and print the replies",
	Long: `send behaves like a Pure-Data patch: it listens for the callback, connects,
sends "initrcv <port>" and then the message, and prints what comes back.

  fcpd send 0 get selection
  fcpd send --replies 2 3 selobserver`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewFUDIClient(sendAddr, sendCallbackPort, sendTimeout)
		if err := c.Connect(cmd.Context()); err != nil {
			return err
		}
		defer c.Close()

		if sendToken != "" {
			if err := c.Send("0", "auth", sendToken); err != nil {
				return err
			}
			reply, err := c.Receive(sendTimeout)
			if err != nil {
				return fmt.Errorf("auth: %w", err)
			}
			if strings.Contains(reply, "ERROR") {
				return fmt.Errorf("auth: %s", reply)
			}
		}

		if err := c.Send(args...); err != nil {
			return err
		}
		for i := 0; i < sendReplies; i++ {
			reply, err := c.Receive(sendTimeout)
			if errors.Is(err, client.ErrNoReply) && i > 0 {
				break
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendAddr, "addr", "localhost:8888", "bridge command address")
	sendCmd.Flags().IntVar(&sendCallbackPort, "callback-port", 0, "port the bridge connects back to, 0 picks one")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 2*time.Second, "how long to wait for each reply")
	sendCmd.Flags().IntVar(&sendReplies, "replies", 1, "replies to wait for")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "token for a bridge that requires auth")
	rootCmd.AddCommand(sendCmd)
}
