package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"timeline/internal/auth"
	"timeline/internal/logging"
	"timeline/internal/models"
	"timeline/internal/repository"
	"timeline/internal/upload"
	"timeline/web"
)

type Handler struct {
	users    repository.UserRepositoryI
	posts    repository.PostRepositoryI
	sessions *auth.Manager
	flash    *auth.Flasher
	uploads  *upload.Store
	logger   logging.Logger
	maxBody  int64
	tpls     *template.Template
}

// Deps are the services a Handler is built from.
type Deps struct {
	Users    repository.UserRepositoryI
	Posts    repository.PostRepositoryI
	Sessions *auth.Manager
	Flash    *auth.Flasher
	Uploads  *upload.Store
	Logger   logging.Logger
	MaxBody  int64
}

var funcs = template.FuncMap{
	"fmtTime": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"ago":     humanize.Time,
}

func New(d Deps) *Handler {
	tpls := template.Must(template.New("").Funcs(funcs).ParseFS(web.Templates, "templates/*.html"))
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard{}
	}
	return &Handler{
		users:    d.Users,
		posts:    d.Posts,
		sessions: d.Sessions,
		flash:    d.Flash,
		uploads:  d.Uploads,
		logger:   logger,
		maxBody:  d.MaxBody,
		tpls:     tpls,
	}
}

// Routes returns the full application, middleware included.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.FileServerFS(web.Static))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", noListing(http.FileServer(http.Dir(h.uploads.Dir())))))

	mux.HandleFunc("GET /{$}", h.Timeline)
	mux.HandleFunc("GET /users", h.Users)
	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /logout", h.Logout)
	mux.HandleFunc("POST /logout", h.Logout)

	mux.HandleFunc("GET /mypage", h.RequireAuth(h.MyPage))
	mux.HandleFunc("GET /edit_profile", h.RequireAuth(h.EditProfileForm))
	mux.HandleFunc("POST /edit_profile", h.RequireAuth(h.EditProfile))
	mux.HandleFunc("GET /post", h.RequireAuth(h.NewPost))
	mux.HandleFunc("POST /post", h.RequireAuth(h.CreatePost))

	mux.HandleFunc("/", h.NotFound)

	limited := LimitBody(mux, h.maxBody, func(w http.ResponseWriter, r *http.Request) {
		h.redirectWithNotice(w, r, r.URL.Path, msgTooLarge(h.maxBody))
	})
	return WithRecover(LogRequests(limited, h.logger), h.logger, h.internalError)
}

func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// -------- Pages

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.Timeline(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.logger.Debug(r.Context(), "timeline shown", map[string]interface{}{"posts": len(posts)})
	h.render(w, r, http.StatusOK, "timeline", map[string]any{
		"Title": "Timeline",
		"Posts": posts,
	})
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "users", map[string]any{
		"Title": "Users",
		"Users": users,
	})
}

func (h *Handler) MyPage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	posts, err := h.posts.ByUser(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "my page shown", map[string]interface{}{"user": user.Name})
	h.render(w, r, http.StatusOK, "mypage", map[string]any{
		"Title": user.Name,
		"User":  user,
		"Posts": posts,
	})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "notfound", map[string]any{
		"Title": "Not Found",
	})
}

// -------- helpers

// currentUser loads the logged-in user. When the session points at a user
// that no longer exists the session is dropped and the client is sent to the
// timeline; ok is false whenever a response has already been written.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	uid, err := userIDFrom(r.Context())
	if err != nil {
		h.redirectWithNotice(w, r, "/login", msgLoginRequired)
		return nil, false
	}
	user, err := h.users.GetByID(r.Context(), uid)
	if err != nil {
		h.serverError(w, r, err)
		return nil, false
	}
	if user == nil {
		h.logger.Warn(r.Context(), "session user missing", map[string]interface{}{"user_id": uid})
		if err := h.sessions.Logout(w, r); err != nil {
			h.logger.Warn(r.Context(), "drop session", map[string]interface{}{"error": err.Error()})
		}
		h.redirectWithNotice(w, r, "/", msgUserNotFound)
		return nil, false
	}
	return user, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Logged"]; !ok {
		_, data["Logged"] = h.sessions.CurrentUserID(r)
	}
	data["Flashes"] = h.flash.Pop(w, r)

	var buf bytes.Buffer
	if err := h.tpls.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error(r.Context(), "render template", map[string]interface{}{
			"template": name,
			"error":    err.Error(),
		})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) redirectWithNotice(w http.ResponseWriter, r *http.Request, to, msg string) {
	if err := h.flash.Add(w, r, msg); err != nil {
		h.logger.Warn(r.Context(), "set notice", map[string]interface{}{"error": err.Error()})
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// fail answers err. Input problems go back to the form at back with a notice;
// anything else is a server error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, back string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.Warn(r.Context(), "invalid input", map[string]interface{}{"path": r.URL.Path, "error": verr.Msg})
		h.redirectWithNotice(w, r, back, verr.Msg)
	case errors.Is(err, ErrPayloadTooLarge):
		h.logger.Warn(r.Context(), "request body too large", map[string]interface{}{"path": r.URL.Path})
		h.redirectWithNotice(w, r, back, msgTooLarge(h.maxBody))
	case errors.Is(err, repository.ErrNameTaken):
		h.redirectWithNotice(w, r, back, msgNameTaken)
	default:
		h.serverError(w, r, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error(r.Context(), "request failed", map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err.Error(),
	})
	h.internalError(w, r)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusInternalServerError, "error", map[string]any{
		"Title":  "Error",
		"Logged": false,
	})
}
