package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svcauth/go-svcauth/assertion"
)

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print an access token for the configured service account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cleanup, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			tok, err := client.IssueAccessToken(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tok)
		},
	}
}

func newCustomTokenCmd(a *app) *cobra.Command {
	var (
		signOnly bool
		claims   string
	)

	cmd := &cobra.Command{
		Use:   "custom-token UID",
		Short: "Issue a token on behalf of a user",
		Long: "Issue a token on behalf of a user. With --sign-only the signed custom " +
			"assertion is printed instead of being exchanged.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []assertion.BuildOption
			if claims != "" {
				var developerClaims map[string]any
				if err := json.Unmarshal([]byte(claims), &developerClaims); err != nil {
					return fmt.Errorf("invalid --claims: %w", err)
				}
				opts = append(opts, assertion.WithDeveloperClaims(developerClaims))
			}

			client, cleanup, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if signOnly {
				signed, err := client.SignCustomToken(cmd.Context(), args[0], opts...)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
				return err
			}

			tok, err := client.IssueCustomToken(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tok)
		},
	}

	cmd.Flags().BoolVar(&signOnly, "sign-only", false, "print the signed assertion without exchanging it")
	cmd.Flags().StringVar(&claims, "claims", "", "developer claims as a JSON object")
	return cmd
}

type verifiedToken struct {
	UserID   string         `json:"user_id"`
	AuthTime int64          `json:"auth_time,omitempty"`
	Claims   map[string]any `json:"claims"`
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify an identity token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			claims, err := client.VerifyIdentityToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), verifiedToken{
				UserID:   claims.UserID,
				AuthTime: claims.AuthTime,
				Claims:   claims.Raw,
			})
		},
	}
}

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [KID]",
		Short: "Print the identity-token signing keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 1 {
				pem, err := client.PublicKey(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), pem)
				return err
			}

			pems, err := client.PublicKeys(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pems)
		},
	}
}
