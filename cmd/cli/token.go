package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/contentsdk/sdk/go/contentsdk"
)

var (
	tokenIP       string
	exchangeScope []string
	exchangeRes   string
)

// tokenCmd groups the access token commands.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Obtain, downscope and revoke access tokens",
}

var tokenGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print a valid access token, granting a new one when needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), cmd.ErrOrStderr(), false)
		if err != nil {
			return err
		}
		defer s.Close()

		token, err := s.client.AccessToken(cmd.Context(), contentsdk.TokenRequestOptions{IP: tokenIP})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke the current access token and clear the token store",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), cmd.ErrOrStderr(), false)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.client.RevokeTokens(cmd.Context(), contentsdk.TokenRequestOptions{IP: tokenIP}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "revoked")
		return nil
	},
}

var tokenExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange the current token for a downscoped one and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(exchangeScope) == 0 {
			return fmt.Errorf("at least one --scope is required")
		}
		s, err := openSession(cmd.Context(), cmd.ErrOrStderr(), false)
		if err != nil {
			return err
		}
		defer s.Close()

		info, err := s.client.ExchangeToken(cmd.Context(), exchangeScope, exchangeRes, contentsdk.TokenRequestOptions{IP: tokenIP})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"access_token":   info.AccessToken,
			"expires_at":     info.ExpiresAt,
			"granted_scopes": strings.Join(info.GrantedScopes, " "),
			"restricted_to":  info.RestrictedTo,
		})
	},
}

func init() {
	tokenCmd.PersistentFlags().StringVar(&tokenIP, "ip", "", "end-user IP forwarded on grant requests")
	tokenExchangeCmd.Flags().StringSliceVar(&exchangeScope, "scope", nil, "scope to request (repeatable)")
	tokenExchangeCmd.Flags().StringVar(&exchangeRes, "resource", "", "restrict the token to this resource URL")

	tokenCmd.AddCommand(tokenGetCmd, tokenRevokeCmd, tokenExchangeCmd)
	rootCmd.AddCommand(tokenCmd)
}
