package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/schoolhub/platform/go/auth/devtoken"
)

func devTokenCommand() *cobra.Command {
	var params devtoken.Params
	var secret string

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate an HS256 JWT the api accepts for dev/local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}

			token, err := devtoken.BuildSignedToken(params, []byte(secret), time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.UserID, "user-id", "", "user_id/sub claim")
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&params.Role, "role", "", "SUPER_ADMIN | ADMIN | TEACHER | STUDENT | PARENT")

	// Optional claims
	cmd.Flags().StringVar(&params.SchoolID, "school-id", "", "school_id claim (required unless role is SUPER_ADMIN)")
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "", "override iss; defaults to schoolhub-dev")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret; defaults to JWT_SECRET")

	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}
