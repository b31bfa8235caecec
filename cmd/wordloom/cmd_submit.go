package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wordloom/internal/platform"
	"wordloom/internal/types"
)

var (
	submitKind         string
	submitContentType  string
	submitPermission   string
	submitVerification string
	submitProject      string
	submitContext      string
	submitTimeout      time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit [request text]",
	Short: "Submit a writing request and wait for the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitKind, "kind", "k", "create", "task kind: create, edit, review, research, summarize")
	submitCmd.Flags().StringVarP(&submitContentType, "type", "t", "", "content type (article, blog_post, email, ...)")
	submitCmd.Flags().StringVarP(&submitPermission, "permission", "p", "", "permission level: assistant, collaborative, semi_autonomous, autonomous")
	submitCmd.Flags().StringVar(&submitVerification, "verification", "", "verification level: basic, standard, comprehensive, critical")
	submitCmd.Flags().StringVar(&submitProject, "project", "", "project id for deviation monitoring")
	submitCmd.Flags().StringVar(&submitContext, "context", "", "additional context for the request")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 10*time.Minute, "how long to wait for the result")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	svc, err := buildService(nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := types.Request{
		Content:   strings.Join(args, " "),
		Kind:      types.TaskKind(submitKind),
		Context:   submitContext,
		ProjectID: submitProject,
		Options: types.RequestOptions{
			PermissionLevel:   types.PermissionLevel(submitPermission),
			VerificationLevel: types.VerificationLevel(submitVerification),
			ContentType:       types.ContentType(submitContentType),
		},
	}

	id, err := svc.Submit(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("workflow %s submitted\n", id)

	deadline := time.After(submitTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if _, err := svc.Cancel(id); err != nil {
				return err
			}
			fmt.Println("cancellation requested")
			return nil
		case <-deadline:
			return fmt.Errorf("timed out waiting for workflow %s", id)
		case <-ticker.C:
			outcome, done := svc.Result(id)
			if !done {
				continue
			}
			printOutcome(outcome)
			if outcome.Workflow.Status != types.StatusCompleted {
				return fmt.Errorf("workflow %s: %s", id, outcome.Workflow.Status)
			}
			return nil
		}
	}
}

func printOutcome(outcome *platform.Outcome) {
	wf := outcome.Workflow
	fmt.Printf("status: %s (%.1fs)\n", wf.Status, wf.Elapsed.Seconds())
	if wf.Error != nil {
		fmt.Printf("error: %s: %s\n", wf.Error.Kind, wf.Error.Message)
	}
	if gr := outcome.Guardrails; gr != nil {
		fmt.Printf("guardrails: accepted=%t hallucination_risk=%.2f quality=%.2f (%s) deviation=%s\n",
			gr.Accepted, gr.Hallucination.RiskScore,
			gr.Quality.OverallScore, gr.Quality.OverallLevel,
			gr.Deviation.OverallRiskLevel)
		for _, rec := range gr.Quality.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
	if wf.FinalContent != "" {
		fmt.Println("---")
		fmt.Println(wf.FinalContent)
	}
}
