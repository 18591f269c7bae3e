package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

// newTokenCommand mints a signed token for local testing of clients and nodes.
func newTokenCommand() *cobra.Command {
	var (
		secret string
		userID string
		nodeID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed development token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}

			verifier := auth.NewJWTVerifier(secret, ttl)
			token, expiresAt, err := verifier.GenerateToken(auth.Claims{
				UserID: userID,
				NodeID: nodeID,
				Role:   role,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&userID, "user", "", "userId claim")
	cmd.Flags().StringVar(&nodeID, "node", "", "nodeId claim")
	cmd.Flags().StringVar(&role, "role", "", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
