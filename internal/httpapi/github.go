package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mdnotes/internal/github"
	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

func routeID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) recordInstallation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstallationID int64 `json:"installationId" validate:"required,gt=0"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	inst, err := s.svc.RecordInstallation(r.Context(), currentUser(r.Context()).ID, req.InstallationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, installationView{ID: inst.ID, Username: inst.Username, AvatarURL: inst.AvatarURL})
}

func (s *Server) uninstall(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Uninstall(r.Context(), currentUser(r.Context()).ID, routeID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type installationChange struct {
	InstallationID int64   `json:"installationId" validate:"required,gt=0"`
	Added          []int64 `json:"added" validate:"dive,gt=0"`
	Removed        []int64 `json:"removed" validate:"dive,gt=0"`
}

func (s *Server) linkRepositories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Installations []installationChange `json:"installations" validate:"required,dive"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	changes := make([]notes.InstallationChange, 0, len(req.Installations))
	for _, c := range req.Installations {
		changes = append(changes, notes.InstallationChange{
			InstallationID: c.InstallationID,
			Added:          c.Added,
			Removed:        c.Removed,
		})
	}
	linked, err := s.svc.LinkRepositories(r.Context(), currentUser(r.Context()).ID, changes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]repositoryView, 0, len(linked))
	for _, repo := range linked {
		out = append(out, newRepositoryView(repo))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.svc.ListBranches(r.Context(), currentUser(r.Context()).ID, routeID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"branches": branches})
}

func (s *Server) pull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RootFolderID   string `json:"rootFolderId" validate:"required"`
		TargetFolderID string `json:"targetFolderId"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Pull(r.Context(), currentUser(r.Context()).ID, notes.PullInput{
		RootFolderID:   req.RootFolderID,
		TargetFolderID: req.TargetFolderID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"treeSha":  res.TreeSha,
		"renamed":  res.Renamed,
		"updated":  res.Updated,
		"restored": res.Restored,
		"inserted": res.Inserted,
		"deleted":  res.Deleted,
		"ignored":  res.Ignored,
		"skipped":  res.Skipped,
	})
}

func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID            string `json:"itemId" validate:"required"`
		Type              string `json:"type" validate:"required,oneof=file folder"`
		Branch            string `json:"branch"`
		CommitMessage     string `json:"commitMessage" validate:"max=1000"`
		CreatePullRequest bool   `json:"createPullRequest"`
		PullRequestTitle  string `json:"pullRequestTitle" validate:"required_if=CreatePullRequest true,max=256"`
		PullRequestBody   string `json:"pullRequestBody"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Push(r.Context(), currentUser(r.Context()).ID, notes.PushInput{
		ItemID:            req.ItemID,
		Type:              model.ItemType(req.Type),
		Branch:            req.Branch,
		CommitMessage:     req.CommitMessage,
		CreatePullRequest: req.CreatePullRequest,
		PullRequestTitle:  req.PullRequestTitle,
		PullRequestBody:   req.PullRequestBody,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := map[string]any{
		"branch":    res.Branch,
		"commitSha": res.CommitSha,
		"written":   res.Written,
		"deleted":   res.Deleted,
		"upToDate":  res.UpToDate,
	}
	if res.PullRequest != nil {
		out["pullRequest"] = map[string]any{"number": res.PullRequest.Number, "url": res.PullRequest.HTMLURL}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			s.writeError(w, r, &requestError{msg: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}
	ops, err := s.svc.History(r.Context(), currentUser(r.Context()).ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]syncOperationView, 0, len(ops))
	for _, op := range ops {
		out = append(out, syncOperationView{
			ID:           op.ID,
			RepositoryID: op.RepositoryID,
			Operation:    op.Operation,
			Status:       op.Status,
			StartedAt:    op.StartedAt,
			FinishedAt:   op.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// webhook handles GitHub App events. Only installation deletions change
// local state; every other event is acknowledged and ignored.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if len(s.opts.WebhookSecret) == 0 {
		s.writeError(w, r, notes.ErrNotFound)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, &requestError{msg: "Malformed request body"})
		return
	}
	if err := github.VerifySignature(s.opts.WebhookSecret, body, r.Header.Get(github.SignatureHeader)); err != nil {
		s.logger.Warn("rejected webhook", "error", err)
		s.writeError(w, r, notes.ErrUnauthorized)
		return
	}

	event := r.Header.Get(github.EventHeader)
	if event != "installation" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ev, err := github.ParseInstallationEvent(body)
	if err != nil {
		s.writeError(w, r, &requestError{msg: "Malformed installation event"})
		return
	}
	s.logger.Info("installation event", "action", ev.Action, "installation", ev.Installation.ID, "account", ev.Installation.Account.Login)
	if ev.Action == "deleted" {
		if err := s.svc.InstallationDeleted(r.Context(), ev.Installation.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
