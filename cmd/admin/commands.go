package main

import (
	"arbiter/backend/internal/api/handler"
	"arbiter/backend/internal/lifecycle"
	"arbiter/backend/internal/models"
	"arbiter/backend/internal/storage"
	"arbiter/backend/internal/verdict"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var tokenFlags struct {
	ttl time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for a user (development and testing)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return mintToken(cmd.OutOrStdout(), handler.NewAuthenticator(cfg.JWTSecret), args[0], tokenFlags.ttl)
	},
}

var caseCmd = &cobra.Command{
	Use:   "case <case-id>",
	Short: "Show a case with its hearings and verdict scores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		return showCase(cmd.Context(), cmd.OutOrStdout(), a.Store, args[0])
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire every pending invitation past its deadline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		return sweepExpired(cmd.Context(), cmd.OutOrStdout(), a.Cases)
	},
}

var rejudgeCmd = &cobra.Command{
	Use:   "rejudge <hearing-id>",
	Short: "Run adjudication again for a hearing, replacing its verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		return rejudge(cmd.Context(), cmd.OutOrStdout(), a.Store, a.Verdicts, args[0])
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 72*time.Hour, "Token lifetime")
}

func mintToken(out io.Writer, auth *handler.Authenticator, userID string, ttl time.Duration) error {
	tok, err := auth.GenerateToken(userID, ttl)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	fmt.Fprintln(out, tok)
	return nil
}

func showCase(ctx context.Context, out io.Writer, store storage.Storage, caseID string) error {
	c, err := store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	hearings, err := store.ListHearings(ctx, caseID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Case:         %s\n", c.ID)
	fmt.Fprintf(out, "Topic:        %s\n", c.Topic)
	fmt.Fprintf(out, "Status:       %s\n", c.Status)
	fmt.Fprintf(out, "Acceptance:   %s\n", c.Acceptance)
	fmt.Fprintf(out, "Owner:        %s\n", c.OwnerID)
	fmt.Fprintf(out, "Participants: %v\n", []string(c.Participants))
	if c.InvitedUserID != nil && c.InviteExpiresAt != nil {
		fmt.Fprintf(out, "Invitee:      %s (until %s)\n", *c.InvitedUserID, c.InviteExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Hearings:     %d\n", len(hearings))
	for _, h := range hearings {
		line := fmt.Sprintf("  round %d  %s  %s", h.Round, h.ID, h.Status)
		if h.AppealOf != nil {
			line += "  appeal of " + *h.AppealOf
		}
		if h.Status == models.HearingStatusJudged {
			if v, err := store.GetVerdict(ctx, h.ID); err == nil {
				line += fmt.Sprintf("  A %.1f%% / B %.1f%% (confidence %.2f)", v.Score.PartyAPct, v.Score.PartyBPct, v.Score.Confidence)
			}
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func sweepExpired(ctx context.Context, out io.Writer, cases *lifecycle.Service) error {
	n, err := cases.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Expired %d invitation(s).\n", n)
	return nil
}

// rejudge acts as the case owner, who is always a participant.
func rejudge(ctx context.Context, out io.Writer, store storage.Storage, verdicts *verdict.Service, hearingID string) error {
	h, err := store.GetHearing(ctx, hearingID)
	if err != nil {
		return err
	}
	c, err := store.GetCase(ctx, h.CaseID)
	if err != nil {
		return err
	}
	v, err := verdicts.Judge(ctx, hearingID, c.OwnerID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Hearing %s judged: A %.1f%% / B %.1f%% (confidence %.2f)\n",
		hearingID, v.Score.PartyAPct, v.Score.PartyBPct, v.Score.Confidence)
	if v.Summary != "" {
		fmt.Fprintln(out, v.Summary)
	}
	return nil
}
