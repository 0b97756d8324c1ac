// Command slot-token issues bearer tokens for the slot API.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Facats/slotwatcherss/internal/middleware"
	"github.com/Facats/slotwatcherss/internal/utils"
)

var (
	subject string
	role    string
	ttl     time.Duration
)

var rootCmd = &cobra.Command{
	Use:     "slot-token --sub NAME [--role ADMIN|BOT] [--ttl 24h]",
	Short:   "Issue a bearer token for the slot API",
	Long:    `Signs an HS256 token with JWT_SECRET. ADMIN tokens may run slot commands; BOT tokens may call the broadcast hook, slot queries and stats.`,
	Example: "  slot-token --sub ops-alice --role ADMIN --ttl 720h",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := strings.ToUpper(role)
		if r != middleware.RoleAdmin && r != middleware.RoleBot {
			return fmt.Errorf("unknown role %q", role)
		}
		tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), subject, r, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.Exp.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&subject, "sub", "", "token subject (operator or integration name)")
	rootCmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "ADMIN or BOT")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = rootCmd.MarkFlagRequired("sub")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
