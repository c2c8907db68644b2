package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"timeline/internal/models"
	"timeline/internal/upload"
)

// maxMemory is how much of a multipart body is kept in memory; the rest
// spills to temp files. The body itself is capped by LimitBody.
const maxMemory = 4 << 20

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// registerForm is the raw /register submission.
type registerForm struct {
	Name     string
	Age      string
	Password string
	Image    *multipart.FileHeader
}

type registerCommand struct {
	Name     string
	Age      int
	Password string
	Image    *multipart.FileHeader
}

func parseRegisterForm(r *http.Request) (registerForm, error) {
	if err := parseForm(r); err != nil {
		return registerForm{}, err
	}
	return registerForm{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Age:      strings.TrimSpace(r.FormValue("age")),
		Password: r.FormValue("password"),
		Image:    formFile(r, "image"),
	}, nil
}

func (f registerForm) validate() (registerCommand, error) {
	if f.Name == "" || f.Age == "" || f.Password == "" || f.Image == nil || f.Image.Filename == "" {
		return registerCommand{}, &ValidationError{Msg: msgFillAllFields, Inline: true}
	}
	if utf8.RuneCountInString(f.Name) > models.MaxNameLength {
		return registerCommand{}, invalid(msgNameTooLong)
	}
	age, err := strconv.Atoi(f.Age)
	if err != nil {
		return registerCommand{}, invalid(msgAgeNotNumber)
	}
	if len(f.Password) > maxPasswordBytes {
		return registerCommand{}, invalid(msgPasswordTooLong)
	}
	if !upload.IsAllowed(f.Image.Filename) {
		return registerCommand{}, invalid(msgBadFileType)
	}
	return registerCommand{Name: f.Name, Age: age, Password: f.Password, Image: f.Image}, nil
}

// profileForm is the raw /edit_profile submission. Password and Image are optional.
type profileForm struct {
	Name     string
	Age      string
	Password string
	Image    *multipart.FileHeader
}

type profileCommand struct {
	Name     string
	Age      int
	Password string
	Image    *multipart.FileHeader
}

func parseProfileForm(r *http.Request) (profileForm, error) {
	if err := parseForm(r); err != nil {
		return profileForm{}, err
	}
	return profileForm{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Age:      strings.TrimSpace(r.FormValue("age")),
		Password: r.FormValue("password"),
		Image:    formFile(r, "image"),
	}, nil
}

func (f profileForm) validate() (profileCommand, error) {
	if f.Name == "" || f.Age == "" {
		return profileCommand{}, invalid(msgNameAndAge)
	}
	if utf8.RuneCountInString(f.Name) > models.MaxNameLength {
		return profileCommand{}, invalid(msgNameTooLong)
	}
	age, err := strconv.Atoi(f.Age)
	if err != nil {
		return profileCommand{}, invalid(msgAgeNotNumber)
	}
	if len(f.Password) > maxPasswordBytes {
		return profileCommand{}, invalid(msgPasswordTooLong)
	}
	if f.Image != nil && !upload.IsAllowed(f.Image.Filename) {
		return profileCommand{}, invalid(msgBadFileType)
	}
	return profileCommand{Name: f.Name, Age: age, Password: f.Password, Image: f.Image}, nil
}

type loginForm struct {
	Name     string
	Password string
}

func parseLoginForm(r *http.Request) (loginForm, error) {
	if err := parseForm(r); err != nil {
		return loginForm{}, err
	}
	return loginForm{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Password: r.FormValue("password"),
	}, nil
}

type postForm struct {
	Content string
}

func parsePostForm(r *http.Request) (postForm, error) {
	if err := parseForm(r); err != nil {
		return postForm{}, err
	}
	return postForm{Content: strings.TrimSpace(r.FormValue("content"))}, nil
}

// validate returns the content to store.
func (f postForm) validate() (string, error) {
	if f.Content == "" {
		return "", invalid(msgEmptyContent)
	}
	if utf8.RuneCountInString(f.Content) > models.MaxContentLength {
		return "", invalid(msgContentTooLong)
	}
	return f.Content, nil
}

// parseForm reads multipart and urlencoded bodies alike. Hitting the body cap
// is reported as ErrPayloadTooLarge.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return ErrPayloadTooLarge
	}
	return err
}

func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 || files[0].Filename == "" {
		return nil
	}
	return files[0]
}
