package handlers

import (
	"net/http"

	"timeline/internal/models"
)

func (h *Handler) NewPost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "create_post", map[string]any{
		"Title":      "New Post",
		"User":       user,
		"MaxContent": models.MaxContentLength,
	})
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	form, err := parsePostForm(r)
	if err != nil {
		h.fail(w, r, err, "/post")
		return
	}
	content, err := form.validate()
	if err != nil {
		h.fail(w, r, err, "/post")
		return
	}

	post := &models.Post{UserID: user.ID, Content: content}
	if err := h.posts.Create(r.Context(), post); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "post created", map[string]interface{}{"user": user.Name, "post_id": post.ID})
	h.redirectWithNotice(w, r, "/", msgPosted)
}
