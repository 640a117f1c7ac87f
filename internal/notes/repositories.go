package notes

import (
	"context"
	"fmt"

	"mdnotes/internal/model"
)

// InstallationChange lists repositories to connect and disconnect for one
// GitHub App installation.
type InstallationChange struct {
	InstallationID int64
	Added          []int64
	Removed        []int64
}

// RecordInstallation stores a GitHub App installation for the user after the
// install callback.
func (s *Service) RecordInstallation(ctx context.Context, userID string, installationID int64) (*model.Installation, error) {
	if err := s.requireGitHub(); err != nil {
		return nil, err
	}
	existing, err := s.database.FindInstallation(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("finding installation: %w", err)
	}
	if existing != nil && existing.UserID != userID {
		return nil, conflictf("Installation belongs to another account")
	}

	remoteInst, err := s.github.GetInstallation(ctx, installationID)
	if err != nil {
		return nil, remote("fetching installation", err)
	}
	inst := &model.Installation{
		ID:        remoteInst.ID,
		UserID:    userID,
		Username:  remoteInst.Account.Login,
		AvatarURL: remoteInst.Account.AvatarURL,
	}
	if err := s.database.UpsertInstallation(ctx, inst); err != nil {
		return nil, fmt.Errorf("saving installation: %w", err)
	}
	s.logger.Info("installation recorded", "installation_id", inst.ID, "account", inst.Username)
	return inst, nil
}

func (s *Service) ownedInstallation(ctx context.Context, userID string, installationID int64) (*model.Installation, error) {
	inst, err := s.database.FindInstallation(ctx, installationID)
	if err != nil {
		return nil, fmt.Errorf("finding installation: %w", err)
	}
	if inst == nil || inst.UserID != userID {
		return nil, notFound("installation")
	}
	return inst, nil
}

func (s *Service) ownedRepository(ctx context.Context, userID string, repoID int64) (*model.Repository, error) {
	repo, err := s.database.FindRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("finding repository: %w", err)
	}
	if repo == nil || repo.UserID != userID {
		return nil, notFound("repository")
	}
	return repo, nil
}

// LinkRepositories connects and disconnects repositories. A connected
// repository is mirrored into a new root folder named after it.
func (s *Service) LinkRepositories(ctx context.Context, userID string, changes []InstallationChange) ([]*model.Repository, error) {
	if err := s.requireGitHub(); err != nil {
		return nil, err
	}

	var linked []*model.Repository
	for _, change := range changes {
		if _, err := s.ownedInstallation(ctx, userID, change.InstallationID); err != nil {
			return linked, err
		}
		for _, repoID := range change.Removed {
			if err := s.unlinkRepository(ctx, userID, repoID); err != nil {
				return linked, err
			}
		}
		for _, repoID := range change.Added {
			repo, err := s.linkRepository(ctx, userID, change.InstallationID, repoID)
			if err != nil {
				return linked, err
			}
			if repo != nil {
				linked = append(linked, repo)
			}
		}
	}
	return linked, nil
}

func (s *Service) linkRepository(ctx context.Context, userID string, installationID, repoID int64) (*model.Repository, error) {
	existing, err := s.database.FindRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("finding repository: %w", err)
	}
	if existing != nil {
		s.logger.Debug("repository already connected", "repository_id", repoID)
		return nil, nil
	}

	remoteRepo, err := s.github.GetRepository(ctx, installationID, repoID)
	if err != nil {
		return nil, remote("fetching repository", err)
	}
	repo := &model.Repository{
		ID:             remoteRepo.ID,
		InstallationID: installationID,
		UserID:         userID,
		Name:           remoteRepo.Name,
		FullName:       remoteRepo.FullName,
		HTMLURL:        remoteRepo.HTMLURL,
		DefaultBranch:  remoteRepo.DefaultBranch,
	}

	ref := repo.Ref()
	tree, err := s.github.GetTree(ctx, ref, repo.DefaultBranch)
	if err != nil {
		return nil, remote("fetching remote tree", err)
	}
	if tree.Truncated {
		s.logger.Warn("remote tree listing truncated", "repository", repo.FullName)
	}
	relevant := RelevantEntries(tree.Entries)
	contents := s.fetchBlobs(ctx, ref, relevant)

	root := &model.Folder{
		ID:        s.idgen.New(),
		UserID:    userID,
		Name:      repo.FullName,
		CreatedAt: s.clock.Now(),
	}
	ins, skipped := s.planInsert(userID, repo.ID, relevant, contents, map[string]string{"": root.ID}, root.ID)
	ins.Folders = append([]*model.Folder{root}, ins.Folders...)
	ins.Links = append([]*model.Link{{
		RepositoryID: repo.ID,
		Type:         model.ItemFolder,
		ItemID:       root.ID,
		Sha:          tree.Sha,
		State:        model.LinkActive,
	}}, ins.Links...)

	if err := s.database.InsertRepository(ctx, repo, ins); err != nil {
		return nil, fmt.Errorf("inserting repository: %w", err)
	}
	s.logger.Info("repository connected", "repository", repo.FullName,
		"folders", len(ins.Folders)-1, "files", len(ins.Files), "skipped", skipped)
	return repo, nil
}

func (s *Service) unlinkRepository(ctx context.Context, userID string, repoID int64) error {
	repo, err := s.ownedRepository(ctx, userID, repoID)
	if err != nil {
		return err
	}
	folderIDs, fileIDs, err := s.repositoryItems(ctx, userID, []*model.Repository{repo})
	if err != nil {
		return err
	}
	if err := s.database.DeleteRepository(ctx, repo.ID, folderIDs, fileIDs); err != nil {
		return fmt.Errorf("deleting repository: %w", err)
	}
	s.logger.Info("repository disconnected", "repository", repo.FullName)
	return nil
}

// repositoryItems returns the local items beneath the root folders of repos.
func (s *Service) repositoryItems(ctx context.Context, userID string, repos []*model.Repository) ([]string, []string, error) {
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	var folderIDs, fileIDs []string
	for _, repo := range repos {
		root, err := s.rootFolderID(ctx, repo.ID)
		if err != nil {
			return nil, nil, err
		}
		if root == "" {
			continue
		}
		fo, fi := idx.subtree(root)
		folderIDs = append(folderIDs, fo...)
		fileIDs = append(fileIDs, fi...)
	}
	return folderIDs, fileIDs, nil
}

// Uninstall removes a GitHub App installation remotely, then locally with
// every repository it grants and their local folders.
func (s *Service) Uninstall(ctx context.Context, userID string, installationID int64) error {
	if err := s.requireGitHub(); err != nil {
		return err
	}
	inst, err := s.ownedInstallation(ctx, userID, installationID)
	if err != nil {
		return err
	}
	if err := s.github.DeleteInstallation(ctx, inst.ID); err != nil {
		return remote("deleting installation", err)
	}
	return s.removeInstallation(ctx, inst)
}

// InstallationDeleted removes an installation that was uninstalled on GitHub.
// Unknown installations are ignored.
func (s *Service) InstallationDeleted(ctx context.Context, installationID int64) error {
	inst, err := s.database.FindInstallation(ctx, installationID)
	if err != nil {
		return fmt.Errorf("finding installation: %w", err)
	}
	if inst == nil {
		return nil
	}
	return s.removeInstallation(ctx, inst)
}

func (s *Service) removeInstallation(ctx context.Context, inst *model.Installation) error {
	repos, err := s.database.ListInstallationRepositories(ctx, inst.ID)
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}
	folderIDs, fileIDs, err := s.repositoryItems(ctx, inst.UserID, repos)
	if err != nil {
		return err
	}
	if err := s.database.DeleteInstallation(ctx, inst.ID, folderIDs, fileIDs); err != nil {
		return fmt.Errorf("deleting installation: %w", err)
	}
	s.logger.Info("installation removed", "installation_id", inst.ID, "repositories", len(repos))
	return nil
}

// ListBranches returns the branch names of a connected repository.
func (s *Service) ListBranches(ctx context.Context, userID string, repoID int64) ([]string, error) {
	if err := s.requireGitHub(); err != nil {
		return nil, err
	}
	repo, err := s.ownedRepository(ctx, userID, repoID)
	if err != nil {
		return nil, err
	}
	branches, err := s.github.ListBranches(ctx, repo.Ref())
	if err != nil {
		return nil, remote("listing branches", err)
	}
	return branches, nil
}

// FindUserByEmail looks up a user for command-line operations.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.database.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if user == nil {
		return nil, notFound("user")
	}
	return user, nil
}
