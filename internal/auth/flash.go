package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	flashCookie = "timeline_flash"
	flashMaxAge = 5 * time.Minute
)

type flashClaims struct {
	Messages []string `json:"msgs"`
	jwt.RegisteredClaims
}

// Flasher carries one-time notices to the next rendered page in a signed cookie.
type Flasher struct {
	signer *Signer
	secure bool
}

func NewFlasher(signer *Signer, secure bool) *Flasher {
	return &Flasher{signer: signer, secure: secure}
}

// Add appends msg to the notices pending for this client.
func (f *Flasher) Add(w http.ResponseWriter, r *http.Request, msg string) error {
	msgs := append(f.pending(r), msg)
	now := time.Now()
	token, err := f.signer.Sign(flashClaims{
		Messages: msgs,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(flashMaxAge)),
		},
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(flashMaxAge / time.Second),
	})
	return nil
}

// Pop returns the pending notices and discards them.
func (f *Flasher) Pop(w http.ResponseWriter, r *http.Request) []string {
	msgs := f.pending(r)
	if _, err := r.Cookie(flashCookie); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookie,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   f.secure,
			MaxAge:   -1,
		})
	}
	return msgs
}

func (f *Flasher) pending(r *http.Request) []string {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	var claims flashClaims
	if err := f.signer.Parse(c.Value, &claims); err != nil {
		return nil
	}
	return claims.Messages
}
