package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"genestore/internal/auth"
)

var (
	tokenName        string
	tokenOwner       string
	tokenScopes      []string
	tokenProjects    []string
	tokenExpires     string
	tokenRateLimit   int
	tokenShowRevoked bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens for the HTTP server",
	Long: `Create, list, revoke and rotate API tokens for authenticating with the
genestore HTTP server.

Tokens are stored in the database under the storage root.

Examples:
  genestore token create --name "Plate reader" --owner alice --scopes write
  genestore token create --name "Viewer" --owner bob --scopes read --projects "lab-*"
  genestore token list
  genestore token revoke gs_key_abc123`,
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API token",
	Long: `Create a new API token with specified scopes and optional restrictions.

Scopes:
  read   - Can read projects, blocks, orders and sequences (GET requests)
  write  - Can write, save and order (POST, PUT, PATCH, DELETE to trash)
  admin  - Full access including forced deletes

Examples:
  genestore token create --name "Bench" --owner alice --scopes write
  genestore token create --name "Admin" --owner ops --scopes admin --expires 30d
  genestore token create --name "Lab only" --owner alice --scopes write --projects "lab-*"`,
	Args: cobra.NoArgs,
	RunE: runTokenCreate,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API tokens",
	Long: `List API tokens with their scopes, restrictions, and last used time.

Examples:
  genestore token list
  genestore token list --owner alice --show-revoked
  genestore token list --format json`,
	Args: cobra.NoArgs,
	RunE: runTokenList,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenRevoke,
}

var tokenRotateCmd = &cobra.Command{
	Use:   "rotate <key-id>",
	Short: "Rotate an API token (generate new secret)",
	Long: `Generate a new secret for an existing API token, invalidating the old one.

The key ID remains the same, but a new token is generated.`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenRotate,
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "Token name (required)")
	tokenCreateCmd.Flags().StringVar(&tokenOwner, "owner", "", "User the token acts as (required)")
	tokenCreateCmd.Flags().StringSliceVar(&tokenScopes, "scopes", nil, "Scopes: read, write, admin (required)")
	tokenCreateCmd.Flags().StringSliceVar(&tokenProjects, "projects", nil, "Restrict to projects matching patterns")
	tokenCreateCmd.Flags().StringVar(&tokenExpires, "expires", "", "Expiration (e.g., 30d, 1h, 2026-12-31)")
	tokenCreateCmd.Flags().IntVar(&tokenRateLimit, "rate-limit", 0, "Rate limit (requests per minute, 0=default)")
	_ = tokenCreateCmd.MarkFlagRequired("name")
	_ = tokenCreateCmd.MarkFlagRequired("owner")
	_ = tokenCreateCmd.MarkFlagRequired("scopes")

	tokenListCmd.Flags().StringVar(&tokenOwner, "owner", "", "Only list tokens of this user")
	tokenListCmd.Flags().BoolVar(&tokenShowRevoked, "show-revoked", false, "Include revoked tokens")

	tokenCmd.AddCommand(tokenCreateCmd, tokenListCmd, tokenRevokeCmd, tokenRotateCmd)
	rootCmd.AddCommand(tokenCmd)
}

// withAuthManager opens the store and a key manager over its database.
// Tokens can be managed even while auth is switched off for the server.
func withAuthManager(fn func(m *auth.Manager) error) error {
	return withApp(func(ctx context.Context, a *app) error {
		cfg := auth.DefaultManagerConfig()
		cfg.Enabled = true
		cfg.DefaultUser = a.cfg.Auth.DefaultUser

		manager, err := auth.NewManager(cfg, a.db.Conn(), a.logger)
		if err != nil {
			return fmt.Errorf("creating auth manager: %w", err)
		}
		return fn(manager)
	})
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	scopes, err := parseScopes(tokenScopes)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if tokenExpires != "" {
		t, err := parseExpiration(tokenExpires)
		if err != nil {
			return fmt.Errorf("invalid expiration '%s': %w", tokenExpires, err)
		}
		expiresAt = &t
	}

	var rateLimit *int
	if tokenRateLimit > 0 {
		rateLimit = &tokenRateLimit
	}

	opts := auth.CreateKeyOptions{
		Name:            tokenName,
		UserID:          tokenOwner,
		Scopes:          scopes,
		ProjectPatterns: tokenProjects,
		RateLimit:       rateLimit,
		ExpiresAt:       expiresAt,
		CreatedBy:       os.Getenv("USER"),
	}

	return withAuthManager(func(manager *auth.Manager) error {
		key, rawToken, err := manager.CreateKey(opts)
		if err != nil {
			return fmt.Errorf("creating token: %w", err)
		}

		out := cmd.OutOrStdout()
		if OutputFormat(formatArg) != FormatHuman {
			resp := map[string]interface{}{
				"key_id":     key.ID,
				"name":       key.Name,
				"user_id":    key.UserID,
				"scopes":     key.Scopes,
				"token":      rawToken,
				"created_at": key.CreatedAt.Format(time.RFC3339),
			}
			if len(key.ProjectPatterns) > 0 {
				resp["project_patterns"] = key.ProjectPatterns
			}
			if key.RateLimit != nil {
				resp["rate_limit"] = *key.RateLimit
			}
			if key.ExpiresAt != nil {
				resp["expires_at"] = key.ExpiresAt.Format(time.RFC3339)
			}
			return printResult(out, resp)
		}

		fmt.Fprintln(out, "API Token Created:")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  ID:       %s\n", key.ID)
		fmt.Fprintf(out, "  Name:     %s\n", key.Name)
		fmt.Fprintf(out, "  User:     %s\n", key.UserID)
		fmt.Fprintf(out, "  Scopes:   %s\n", formatScopes(key.Scopes))
		if len(key.ProjectPatterns) > 0 {
			fmt.Fprintf(out, "  Projects: %s\n", strings.Join(key.ProjectPatterns, ", "))
		}
		if key.RateLimit != nil {
			fmt.Fprintf(out, "  Rate:     %d/min\n", *key.RateLimit)
		}
		if key.ExpiresAt != nil {
			fmt.Fprintf(out, "  Expires:  %s\n", key.ExpiresAt.Format("2006-01-02"))
		}
		fmt.Fprintf(out, "  Token:    %s\n", rawToken)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  IMPORTANT: Store this token securely. It will not be shown again.")
		return nil
	})
}

func runTokenList(cmd *cobra.Command, args []string) error {
	return withAuthManager(func(manager *auth.Manager) error {
		keys, err := manager.ListKeys(tokenOwner, tokenShowRevoked)
		if err != nil {
			return fmt.Errorf("listing tokens: %w", err)
		}

		out := cmd.OutOrStdout()
		if OutputFormat(formatArg) != FormatHuman {
			return printResult(out, map[string]interface{}{
				"tokens": keys,
				"count":  len(keys),
			})
		}

		if len(keys) == 0 {
			fmt.Fprintln(out, "No API tokens found.")
			return nil
		}

		fmt.Fprintln(out, "API Tokens:")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %-26s %-16s %-10s %-10s %-12s %-8s %-14s\n",
			"ID", "NAME", "USER", "SCOPES", "PROJECTS", "RATE", "LAST USED")
		fmt.Fprintf(out, "  %-26s %-16s %-10s %-10s %-12s %-8s %-14s\n",
			strings.Repeat("-", 26), strings.Repeat("-", 16), strings.Repeat("-", 10), strings.Repeat("-", 10),
			strings.Repeat("-", 12), strings.Repeat("-", 8), strings.Repeat("-", 14))

		for _, key := range keys {
			projects := "*"
			if len(key.ProjectPatterns) > 0 {
				projects = truncate(strings.Join(key.ProjectPatterns, ","), 12)
			}

			rate := "-"
			if key.RateLimit != nil {
				rate = fmt.Sprintf("%d/m", *key.RateLimit)
			}

			lastUsed := "never"
			if key.LastUsedAt != nil {
				lastUsed = humanize.Time(*key.LastUsedAt)
			}

			status := ""
			if key.Revoked {
				status = " [REVOKED]"
			} else if key.IsExpired() {
				status = " [EXPIRED]"
			}

			fmt.Fprintf(out, "  %-26s %-16s %-10s %-10s %-12s %-8s %-14s%s\n",
				key.ID, truncate(key.Name, 16), truncate(key.UserID, 10), formatScopes(key.Scopes),
				projects, rate, lastUsed, status)
		}
		return nil
	})
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	keyID := args[0]
	return withAuthManager(func(manager *auth.Manager) error {
		if err := manager.RevokeKey(keyID); err != nil {
			return fmt.Errorf("revoking token: %w", err)
		}
		if OutputFormat(formatArg) != FormatHuman {
			return printResult(cmd.OutOrStdout(), map[string]interface{}{
				"revoked": keyID,
				"success": true,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token %s revoked successfully.\n", keyID)
		return nil
	})
}

func runTokenRotate(cmd *cobra.Command, args []string) error {
	keyID := args[0]
	return withAuthManager(func(manager *auth.Manager) error {
		key, rawToken, err := manager.RotateKey(keyID)
		if err != nil {
			return fmt.Errorf("rotating token: %w", err)
		}

		out := cmd.OutOrStdout()
		if OutputFormat(formatArg) != FormatHuman {
			return printResult(out, map[string]interface{}{
				"key_id":     key.ID,
				"name":       key.Name,
				"new_token":  rawToken,
				"rotated_at": time.Now().Format(time.RFC3339),
			})
		}
		fmt.Fprintln(out, "Token Rotated:")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  ID:        %s\n", key.ID)
		fmt.Fprintf(out, "  Name:      %s\n", key.Name)
		fmt.Fprintf(out, "  New Token: %s\n", rawToken)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  IMPORTANT: The old token is now invalid. Store the new token securely.")
		return nil
	})
}

func parseScopes(raw []string) ([]auth.Scope, error) {
	scopes := make([]auth.Scope, 0, len(raw))
	for _, s := range raw {
		scope := auth.Scope(strings.ToLower(strings.TrimSpace(s)))
		if !scope.IsValid() {
			return nil, fmt.Errorf("invalid scope '%s' (valid: read, write, admin)", s)
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

// parseExpiration parses an expiration string like "30d", "1h", or "2026-12-31"
func parseExpiration(s string) (time.Time, error) {
	if len(s) > 1 {
		unit := s[len(s)-1]
		var value int
		if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &value); err == nil {
			var d time.Duration
			switch unit {
			case 'd':
				d = time.Duration(value) * 24 * time.Hour
			case 'h':
				d = time.Duration(value) * time.Hour
			case 'm':
				d = time.Duration(value) * time.Minute
			}
			if d > 0 {
				return time.Now().Add(d), nil
			}
		}
	}

	formats := []string{
		"2006-01-02",
		"2006-01-02T15:04:05",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized format (use 30d, 1h, or YYYY-MM-DD)")
}

func formatScopes(scopes []auth.Scope) string {
	strs := make([]string, len(scopes))
	for i, s := range scopes {
		strs[i] = string(s)
	}
	return strings.Join(strs, ",")
}
