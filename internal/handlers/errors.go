package handlers

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrPayloadTooLarge = errors.New("request body too large")
)

// ValidationError is a user input problem. Msg is shown to the user as is.
// Inline errors re-render the form instead of redirecting.
type ValidationError struct {
	Msg    string
	Inline bool
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// User-facing notices.
const (
	msgLoginRequired   = "Please log in."
	msgLoginFailed     = "Login failed: wrong name or password."
	msgFillAllFields   = "Please fill in all fields."
	msgNameAndAge      = "Please enter your name and age."
	msgNameTooLong     = "Names must be 50 characters or fewer."
	msgAgeNotNumber    = "Age must be a whole number."
	msgPasswordTooLong = "Passwords must be 72 bytes or fewer."
	msgBadFileType     = "That file type is not allowed (png, jpg, jpeg, gif)."
	msgNameTaken       = "That name is already taken."
	msgEmptyContent    = "Please enter some content."
	msgContentTooLong  = "Posts must be 100 characters or fewer."
	msgUserNotFound    = "Your user account could not be found."
	msgRegistered      = "Registration complete!"
	msgProfileUpdated  = "Profile updated!"
	msgPosted          = "Posted!"
	msgLoggedOut       = "You have been logged out."
)

func msgTooLarge(limit int64) string {
	return fmt.Sprintf("The file is too large (%s max).", humanize.IBytes(uint64(limit)))
}
