package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"timeline/internal/auth"
	"timeline/internal/models"
	"timeline/internal/repository"
)

func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", map[string]any{
		"Title": "Register",
		"Form":  registerForm{},
	})
}

// Register creates a user. Everything is validated before the image is
// written, and the image is removed again if the insert fails.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	form, err := parseRegisterForm(r)
	if err != nil {
		h.fail(w, r, err, "/register")
		return
	}
	cmd, err := form.validate()
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Inline {
		h.logger.Warn(r.Context(), "incomplete registration", nil)
		h.render(w, r, http.StatusBadRequest, "register", map[string]any{
			"Title": "Register",
			"Error": verr.Msg,
			"Form":  form,
		})
		return
	}
	if err != nil {
		h.fail(w, r, err, "/register")
		return
	}

	existing, err := h.users.GetByName(r.Context(), cmd.Name)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if existing != nil {
		h.fail(w, r, repository.ErrNameTaken, "/register")
		return
	}

	hash, err := auth.HashPassword(cmd.Password)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	stored, err := h.saveImage(cmd.Image)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	user := &models.User{Name: cmd.Name, Age: cmd.Age, ImageFilename: stored, PasswordHash: hash}
	if err := h.users.Create(r.Context(), user); err != nil {
		h.discardImage(r, stored)
		h.fail(w, r, err, "/register")
		return
	}

	h.logger.Info(r.Context(), "user registered", map[string]interface{}{"name": user.Name, "id": user.ID})
	h.redirectWithNotice(w, r, "/users", msgRegistered)
}

func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", map[string]any{
		"Title": "Login",
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	form, err := parseLoginForm(r)
	if err != nil {
		h.fail(w, r, err, "/login")
		return
	}

	user, err := h.users.GetByName(r.Context(), form.Name)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(form.Password, user.PasswordHash) {
		h.logger.Warn(r.Context(), "login failed", map[string]interface{}{"name": form.Name})
		h.redirectWithNotice(w, r, "/login", msgLoginFailed)
		return
	}

	if err := h.sessions.Login(r.Context(), w, user.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "user logged in", map[string]interface{}{"name": user.Name})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.logger.Warn(r.Context(), "logout", map[string]interface{}{"error": err.Error()})
	}
	h.redirectWithNotice(w, r, "/login", msgLoggedOut)
}

func (h *Handler) EditProfileForm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "edit_profile", map[string]any{
		"Title": "Edit profile",
		"User":  user,
	})
}

// EditProfile updates name and age, and the password and image when given.
// A replaced image file is deleted once the update is committed.
func (h *Handler) EditProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	form, err := parseProfileForm(r)
	if err != nil {
		h.fail(w, r, err, "/edit_profile")
		return
	}
	cmd, err := form.validate()
	if err != nil {
		h.fail(w, r, err, "/edit_profile")
		return
	}

	updated := *user
	updated.Name = cmd.Name
	updated.Age = cmd.Age
	if cmd.Password != "" {
		hash, err := auth.HashPassword(cmd.Password)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		updated.PasswordHash = hash
	}
	if cmd.Image != nil {
		stored, err := h.saveImage(cmd.Image)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		updated.ImageFilename = stored
	}

	if err := h.users.Update(r.Context(), &updated); err != nil {
		if updated.ImageFilename != user.ImageFilename {
			h.discardImage(r, updated.ImageFilename)
		}
		h.fail(w, r, err, "/edit_profile")
		return
	}
	if updated.ImageFilename != user.ImageFilename && user.ImageFilename != "" {
		h.discardImage(r, user.ImageFilename)
	}

	h.logger.Info(r.Context(), "profile updated", map[string]interface{}{"id": user.ID, "name": updated.Name})
	h.redirectWithNotice(w, r, "/mypage", msgProfileUpdated)
}

func (h *Handler) saveImage(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.uploads.Save(f, fh.Filename)
}

func (h *Handler) discardImage(r *http.Request, name string) {
	if err := h.uploads.Remove(name); err != nil {
		h.logger.Warn(r.Context(), "remove upload", map[string]interface{}{"file": name, "error": err.Error()})
	}
}
