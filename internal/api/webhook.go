package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/press-vault/internal/deploy"
	"github.com/press-vault/internal/githost"
	"github.com/press-vault/internal/webhook"
)

const (
	headerEvent     = "X-GitHub-Event"
	headerSignature = "X-Hub-Signature-256"
)

// handleWebhook is the push-event entry point. Signature verification
// runs against the raw body before anything else touches state; ignored
// event types are still acknowledged with JSON so the sender never
// retries spuriously.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	eventType := r.Header.Get(headerEvent)

	if s.webhookSecret != "" && eventType == "push" {
		sig := r.Header.Get(headerSignature)
		if sig == "" || !webhook.VerifySignature(body, sig, s.webhookSecret) {
			respondError(w, http.StatusUnauthorized, "Invalid webhook signature")
			return
		}
	}

	event, err := webhook.Decode(eventType, body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	switch ev := event.(type) {
	case webhook.PingEvent:
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "event": "ping"})

	case webhook.UnknownEvent:
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "event": ev.Type, "ignored": true})

	case *webhook.PushEvent:
		result := s.deployPush(r.Context(), ev)
		respondJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"event":    "push",
			"branch":   ev.Branch,
			"sha":      ev.SHA,
			"deployed": result,
		})
	}
}

// deployPush runs an incremental deploy for a push and reports the
// outcome to the Git hosting API when a client is configured.
func (s *Server) deployPush(ctx context.Context, event *webhook.PushEvent) *deploy.Result {
	var fetch deploy.FetchContentFunc
	if s.fetcherFor != nil {
		fetch = s.fetcherFor(event.Repository, event.SHA)
	} else {
		fetch = func(context.Context, string) (string, error) {
			return "", fmt.Errorf("no content fetcher configured")
		}
	}

	result := s.orchestrator.IncrementalDeploy(ctx, event, deploy.IncrementalOptions{Fetch: fetch})
	s.reportDeployment(ctx, event, result)
	return result
}

// reportDeployment posts a commit status and, for PR previews, a comment
// with the preview URL. Reporting failures are logged, never surfaced.
func (s *Server) reportDeployment(ctx context.Context, event *webhook.PushEvent, result *deploy.Result) {
	if s.githost == nil {
		return
	}

	state := "success"
	description := fmt.Sprintf("Deployed %d files to %s", len(result.DeployedFiles), result.Environment.Name)
	if !result.Success {
		state = "failure"
		description = fmt.Sprintf("Deploy failed for %d files", len(result.Errors))
	}

	status := s.githost.SetCommitStatus(ctx, event.SHA, githost.CommitStatus{
		State:       state,
		Description: description,
		TargetURL:   result.Environment.URL,
		Context:     "press-vault/deploy",
	})
	if !status.Success {
		log.Printf("Failed to post commit status for %s: %s", event.SHA, status.Error)
	}

	if result.Environment.PRNumber > 0 && result.Success {
		comment := fmt.Sprintf("Preview deployed: %s", result.Environment.URL)
		if res := s.githost.PostPRComment(ctx, result.Environment.PRNumber, comment); !res.Success {
			log.Printf("Failed to post PR comment for #%d: %s", result.Environment.PRNumber, res.Error)
		}
	}
}
