package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	Password string `json:"password" validate:"required,max=256"`
}

type sessionResponse struct {
	User      userView  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) startSession(w http.ResponseWriter, res *notes.SessionResult, status int) {
	s.setSessionCookie(w, res.Session)
	writeJSON(w, status, sessionResponse{
		User:      userView{ID: res.User.ID, Email: res.User.Email},
		ExpiresAt: res.Session.ExpiresAt,
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, res, http.StatusCreated)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, res, http.StatusOK)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Logout(r.Context(), currentSession(r.Context()).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) signOutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.svc.SignOutAll(ctx, currentUser(ctx).ID, currentSession(ctx).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteUser(r.Context(), currentUser(r.Context()).ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) changeEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,max=320"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user := currentUser(r.Context())
	if err := s.svc.ChangeEmail(r.Context(), user, req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView{ID: user.ID, Email: user.Email})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,max=256"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.ResetPassword(r.Context(), currentUser(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) workspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.svc.Workspace(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWorkspaceView(ws))
}

func (s *Server) createFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name" validate:"required,max=256"`
		Icon     string `json:"icon"`
		FolderID string `json:"folderId"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.svc.CreateFile(r.Context(), currentUser(r.Context()).ID, notes.CreateFileInput{
		Name:     req.Name,
		Icon:     req.Icon,
		FolderID: req.FolderID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFileView(f, true))
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.svc.GetFile(r.Context(), currentUser(r.Context()).ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileView(f, true))
}

func (s *Server) saveFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Doc *string `json:"doc" validate:"required"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.SaveFile(r.Context(), currentUser(r.Context()).ID, mux.Vars(r)["id"], *req.Doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name" validate:"required,max=256"`
		ParentID string `json:"parentId"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.svc.CreateFolder(r.Context(), currentUser(r.Context()).ID, req.Name, req.ParentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &folderView{
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		UpdatedAt: f.CreatedAt,
		Folders:   []*folderView{},
		Files:     []*fileView{},
	})
}

// itemTarget returns the item type and id from the route.
func itemTarget(r *http.Request) (model.ItemType, string) {
	vars := mux.Vars(r)
	return model.ItemType(vars["type"]), vars["id"]
}

func (s *Server) rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name" validate:"required,max=256"`
		Icon      string `json:"icon"`
		IconColor string `json:"iconColor"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	typ, id := itemTarget(r)
	err := s.svc.Rename(r.Context(), currentUser(r.Context()).ID, notes.RenameInput{
		ID:        id,
		Type:      typ,
		Name:      req.Name,
		Icon:      req.Icon,
		IconColor: req.IconColor,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveTo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DestinationID string `json:"destinationId"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	typ, id := itemTarget(r)
	if err := s.svc.MoveTo(r.Context(), currentUser(r.Context()).ID, typ, id, req.DestinationID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveToTrash(w http.ResponseWriter, r *http.Request) {
	typ, id := itemTarget(r)
	if err := s.svc.MoveToTrash(r.Context(), currentUser(r.Context()).ID, typ, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	typ, id := itemTarget(r)
	if err := s.svc.Restore(r.Context(), currentUser(r.Context()).ID, typ, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	typ, id := itemTarget(r)
	if err := s.svc.Delete(r.Context(), currentUser(r.Context()).ID, typ, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateEditorSettings(w http.ResponseWriter, r *http.Request) {
	var req model.EditorSettings
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.UpdateEditorSettings(r.Context(), currentUser(r.Context()).ID, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) setKeybinding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,max=64"`
		// An empty key resets the binding.
		Key string `json:"key" validate:"max=64"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.SetKeybinding(r.Context(), currentUser(r.Context()).ID, req.Name, req.Key); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
