package auth

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionCookie = "timeline_session"

// Manager ties the signed session cookie to a server-side Store.
type Manager struct {
	store  Store
	signer *Signer
	maxAge time.Duration
	secure bool
}

func NewManager(store Store, signer *Signer, maxAge time.Duration, secure bool) *Manager {
	return &Manager{store: store, signer: signer, maxAge: maxAge, secure: secure}
}

// Login starts a new session for userID. Sessions on other devices stay valid.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, userID int64) error {
	id := uuid.New().String()
	now := time.Now()
	expires := now.Add(m.maxAge)
	if err := m.store.Save(ctx, Record{ID: id, UserID: userID, ExpiresAt: expires}); err != nil {
		return err
	}

	token, err := m.signer.Sign(jwt.RegisteredClaims{
		ID:        id,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	return nil
}

// Logout revokes the current session, if any, and clears the cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	var err error
	if claims, ok := m.claims(r); ok {
		err = m.store.Delete(r.Context(), claims.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	return err
}

// CurrentUserID returns the authenticated user of r, if any.
func (m *Manager) CurrentUserID(r *http.Request) (int64, bool) {
	claims, ok := m.claims(r)
	if !ok {
		return 0, false
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, false
	}
	rec, err := m.store.Get(r.Context(), claims.ID)
	if err != nil || rec == nil || rec.UserID != uid {
		return 0, false
	}
	return uid, true
}

func (m *Manager) claims(r *http.Request) (*jwt.RegisteredClaims, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	var claims jwt.RegisteredClaims
	if err := m.signer.Parse(c.Value, &claims); err != nil || claims.ID == "" {
		return nil, false
	}
	return &claims, true
}
