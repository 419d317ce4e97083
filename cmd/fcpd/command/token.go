package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fcpd/internal/config"
	"fcpd/internal/microservices/tcp"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a token for peers and the operator API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigFile(cfgFile)
		if err != nil {
			return err
		}
		if cfg.AuthSecret == "" {
			return errors.New("FCPD_AUTH_SECRET is not set")
		}
		token, err := tcp.NewAuthService(cfg.AuthSecret).IssueToken(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 never expires")
	rootCmd.AddCommand(tokenCmd)
}
