package handlers_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"timeline/internal/auth"
	"timeline/internal/handlers"
	"timeline/internal/models"
	"timeline/internal/repository"
	"timeline/internal/testutil"
	"timeline/internal/upload"
)

const maxBody = 2 * 1024 * 1024

type testApp struct {
	t         *testing.T
	db        *gorm.DB
	users     *repository.UserRepository
	posts     *repository.PostRepository
	uploadDir string
	handler   http.Handler
	srv       *httptest.Server
	client    *http.Client
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, "handlers")
	signer, err := auth.NewSigner("test-secret")
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "uploads")
	uploads, err := upload.NewStore(dir)
	require.NoError(t, err)

	users := repository.NewUserRepository(d, nil)
	posts := repository.NewPostRepository(d, nil)
	h := handlers.New(handlers.Deps{
		Users:    users,
		Posts:    posts,
		Sessions: auth.NewManager(auth.NewSQLStore(d), signer, time.Hour, false),
		Flash:    auth.NewFlasher(signer, false),
		Uploads:  uploads,
		MaxBody:  maxBody,
	})
	routes := h.Routes()
	srv := httptest.NewServer(routes)
	t.Cleanup(srv.Close)

	return &testApp{
		t:         t,
		db:        d,
		users:     users,
		posts:     posts,
		uploadDir: dir,
		handler:   routes,
		srv:       srv,
		client:    newClient(t),
	}
}

// newClient keeps cookies but does not follow redirects.
func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type response struct {
	status   int
	location string
	body     string
}

func (a *testApp) do(req *http.Request) response {
	a.t.Helper()
	resp, err := a.client.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(b)}
}

func (a *testApp) get(path string) response {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+path, nil)
	require.NoError(a.t, err)
	return a.do(req)
}

func (a *testApp) postForm(path string, form url.Values) response {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *testApp) postMultipart(path string, fields map[string]string, fileName string, content []byte) response {
	a.t.Helper()
	body, contentType := multipartBody(a.t, fields, fileName, content)
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, body)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", contentType)
	return a.do(req)
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("image", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (a *testApp) register(name, age, password, fileName string) response {
	a.t.Helper()
	return a.postMultipart("/register", map[string]string{
		"name":     name,
		"age":      age,
		"password": password,
	}, fileName, []byte("fake image bytes"))
}

func (a *testApp) login(name, password string) response {
	a.t.Helper()
	return a.postForm("/login", url.Values{"name": {name}, "password": {password}})
}

func (a *testApp) uploadedFiles() []string {
	a.t.Helper()
	entries, err := os.ReadDir(a.uploadDir)
	require.NoError(a.t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (a *testApp) postCount() int64 {
	a.t.Helper()
	var n int64
	require.NoError(a.t, a.db.Model(&models.Post{}).Count(&n).Error)
	return n
}

func TestRegisterLoginScenario(t *testing.T) {
	app := newTestApp(t)

	res := app.register("alice", "30", "pw123", "a.png")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/users", res.location)

	res = app.get("/users")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "alice")
	assert.Contains(t, res.body, "Registration complete!")

	alice, err := app.users.GetByName(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, 30, alice.Age)
	assert.NotEqual(t, "pw123", alice.PasswordHash)
	assert.True(t, auth.CheckPassword("pw123", alice.PasswordHash))
	assert.False(t, auth.CheckPassword("wrong", alice.PasswordHash))
	assert.True(t, strings.HasSuffix(alice.ImageFilename, "-a.png"))
	assert.Equal(t, []string{alice.ImageFilename}, app.uploadedFiles())

	res = app.login("alice", "pw123")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)

	res = app.get("/mypage")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "alice")

	res = app.get("/logout")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/login", res.location)

	res = app.login("alice", "wrong")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/login", res.location)
	res = app.get("/login")
	assert.Contains(t, res.body, "Login failed")

	res = app.get("/mypage")
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/login", res.location)
}

func TestLogin_UnknownUserGetsSameNotice(t *testing.T) {
	app := newTestApp(t)

	res := app.login("ghost", "pw")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/login", res.location)
	res = app.get("/login")
	assert.Contains(t, res.body, "Login failed: wrong name or password.")
}

func TestCreatePost_ShowsFirstOnTimeline(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	app.login("alice", "pw123")
	alice, err := app.users.GetByName(context.Background(), "alice")
	require.NoError(t, err)

	older := &models.Post{Content: "older post", UserID: alice.ID, Timestamp: time.Now().Add(-time.Hour)}
	require.NoError(t, app.posts.Create(context.Background(), older))

	res := app.postForm("/post", url.Values{"content": {"  hello  "}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)

	res = app.get("/")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "Posted!")
	hello := strings.Index(res.body, "<p>hello</p>")
	old := strings.Index(res.body, "<p>older post</p>")
	require.NotEqual(t, -1, hello)
	require.NotEqual(t, -1, old)
	assert.Less(t, hello, old)
	assert.Contains(t, res.body, `data-user-id="`+strconv.FormatInt(alice.ID, 10)+`"`)

	timeline, err := app.posts.Timeline(context.Background())
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, "hello", timeline[0].Content)
	assert.Equal(t, alice.ID, timeline[0].UserID)

	res = app.get("/mypage")
	assert.Contains(t, res.body, "hello")
}

func TestCreatePost_RejectsTooLongAndEmpty(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	app.login("alice", "pw123")

	res := app.postForm("/post", url.Values{"content": {strings.Repeat("x", 101)}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/post", res.location)
	assert.Contains(t, app.get("/post").body, "Posts must be 100 characters or fewer.")
	assert.Equal(t, int64(0), app.postCount())

	res = app.postForm("/post", url.Values{"content": {"   "}})
	assert.Equal(t, "/post", res.location)
	assert.Equal(t, int64(0), app.postCount())

	// 100 multi-byte characters still fit.
	res = app.postForm("/post", url.Values{"content": {strings.Repeat("あ", 100)}})
	assert.Equal(t, "/", res.location)
	assert.Equal(t, int64(1), app.postCount())
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/mypage", "/edit_profile", "/post"} {
		res := app.get(path)
		assert.Equal(t, http.StatusSeeOther, res.status, path)
		assert.Equal(t, "/login", res.location, path)
	}

	res := app.postForm("/post", url.Values{"content": {"sneaky"}})
	assert.Equal(t, "/login", res.location)
	assert.Equal(t, int64(0), app.postCount())

	res = app.postForm("/edit_profile", url.Values{"name": {"x"}, "age": {"1"}})
	assert.Equal(t, "/login", res.location)

	res = app.get("/login")
	assert.Contains(t, res.body, "Please log in.")
}

func TestRegister_DoesNotRequireLogin(t *testing.T) {
	app := newTestApp(t)

	res := app.get("/register")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, `enctype="multipart/form-data"`)
}

func TestRegister_RejectsDisallowedExtension(t *testing.T) {
	app := newTestApp(t)

	res := app.register("bob", "20", "pw", "evil.exe")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/register", res.location)
	assert.Contains(t, app.get("/register").body, "file type is not allowed")

	bob, err := app.users.GetByName(context.Background(), "bob")
	require.NoError(t, err)
	assert.Nil(t, bob)
	assert.Empty(t, app.uploadedFiles())
}

func TestRegister_MissingFieldsRenderInline(t *testing.T) {
	app := newTestApp(t)

	res := app.postMultipart("/register", map[string]string{"name": "bob", "age": "20", "password": "pw"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Contains(t, res.body, "Please fill in all fields.")
	assert.Contains(t, res.body, `value="bob"`)

	res = app.postForm("/register", url.Values{"name": {"bob"}})
	assert.Equal(t, http.StatusBadRequest, res.status)

	users, err := app.users.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRegister_RejectsNonNumericAge(t *testing.T) {
	app := newTestApp(t)

	res := app.register("bob", "twenty", "pw", "b.png")
	assert.Equal(t, "/register", res.location)
	assert.Contains(t, app.get("/register").body, "Age must be a whole number.")
	assert.Empty(t, app.uploadedFiles())
}

func TestRegister_DuplicateName(t *testing.T) {
	app := newTestApp(t)

	app.register("alice", "30", "pw123", "a.png")
	res := app.register("alice", "31", "other", "b.png")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/register", res.location)
	assert.Contains(t, app.get("/register").body, "That name is already taken.")

	users, err := app.users.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Len(t, app.uploadedFiles(), 1)
}

func TestRegister_PayloadTooLarge(t *testing.T) {
	app := newTestApp(t)
	big := bytes.Repeat([]byte("x"), maxBody+1024)

	t.Run("announced", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"name": "big", "age": "1", "password": "pw"}, "big.png", big)
		req := httptest.NewRequest(http.MethodPost, "/register", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/register", rec.Header().Get("Location"))
	})

	t.Run("streamed", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"name": "big", "age": "1", "password": "pw"}, "big.png", big)
		req := httptest.NewRequest(http.MethodPost, "/register", io.NopCloser(body))
		req.ContentLength = -1
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/register", rec.Header().Get("Location"))
	})

	user, err := app.users.GetByName(context.Background(), "big")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, app.uploadedFiles())
}

func TestEditProfile(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	app.login("alice", "pw123")
	before, err := app.users.GetByName(context.Background(), "alice")
	require.NoError(t, err)

	res := app.get("/edit_profile")
	require.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, `value="alice"`)

	// Disallowed image: nothing changes.
	res = app.postMultipart("/edit_profile", map[string]string{"name": "alicia", "age": "31"}, "x.php", []byte("<?php"))
	assert.Equal(t, "/edit_profile", res.location)
	same, err := app.users.GetByID(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", same.Name)
	assert.Equal(t, before.ImageFilename, same.ImageFilename)

	// Empty name.
	res = app.postMultipart("/edit_profile", map[string]string{"name": "", "age": "31"}, "", nil)
	assert.Equal(t, "/edit_profile", res.location)
	assert.Contains(t, app.get("/edit_profile").body, "Please enter your name and age.")

	res = app.postMultipart("/edit_profile", map[string]string{"name": "alicia", "age": "31", "password": "newpw"}, "b.gif", []byte("gif"))
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/mypage", res.location)
	assert.Contains(t, app.get("/mypage").body, "Profile updated!")

	after, err := app.users.GetByID(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", after.Name)
	assert.Equal(t, 31, after.Age)
	assert.True(t, strings.HasSuffix(after.ImageFilename, "-b.gif"))
	assert.True(t, auth.CheckPassword("newpw", after.PasswordHash))
	// The replaced image is gone.
	assert.Equal(t, []string{after.ImageFilename}, app.uploadedFiles())

	// Without password or image both stay.
	res = app.postForm("/edit_profile", url.Values{"name": {"alicia"}, "age": {"32"}})
	assert.Equal(t, "/mypage", res.location)
	kept, err := app.users.GetByID(context.Background(), before.ID)
	require.NoError(t, err)
	assert.Equal(t, after.PasswordHash, kept.PasswordHash)
	assert.Equal(t, after.ImageFilename, kept.ImageFilename)
	assert.Equal(t, 32, kept.Age)
}

func TestEditProfile_NameTakenKeepsNewImageOff(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	app.register("bob", "40", "pw", "b.png")
	app.login("bob", "pw")

	res := app.postMultipart("/edit_profile", map[string]string{"name": "alice", "age": "40"}, "c.png", []byte("c"))
	assert.Equal(t, "/edit_profile", res.location)
	assert.Contains(t, app.get("/edit_profile").body, "That name is already taken.")
	assert.Len(t, app.uploadedFiles(), 2)
}

func TestMissingUserDropsSession(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	app.login("alice", "pw123")

	require.NoError(t, app.db.Where("name = ?", "alice").Delete(&models.User{}).Error)

	res := app.get("/mypage")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)
	assert.Contains(t, app.get("/").body, "could not be found")

	res = app.get("/mypage")
	assert.Equal(t, "/login", res.location)
}

func TestUploadsAreServed(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	files := app.uploadedFiles()
	require.Len(t, files, 1)

	res := app.get("/uploads/" + files[0])
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "fake image bytes", res.body)

	assert.Equal(t, http.StatusNotFound, app.get("/uploads/").status)
	assert.Contains(t, app.get("/users").body, "/uploads/"+files[0])
}

func TestStaticAndNotFound(t *testing.T) {
	app := newTestApp(t)

	res := app.get("/static/style.css")
	assert.Equal(t, http.StatusOK, res.status)

	res = app.get("/nope")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Contains(t, res.body, "Page not found")
}

func TestLogoutByPost(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	app.login("alice", "pw123")
	require.Equal(t, http.StatusOK, app.get("/mypage").status)

	res := app.postForm("/logout", url.Values{})
	assert.Equal(t, "/login", res.location)
	assert.Equal(t, "/login", app.get("/mypage").location)
}

func TestRegister_RejectsOverlongPassword(t *testing.T) {
	app := newTestApp(t)

	res := app.register("carol", "30", strings.Repeat("p", 73), "c.png")
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/register", res.location)
	assert.Contains(t, app.get("/register").body, "Passwords must be 72 bytes or fewer.")

	carol, err := app.users.GetByName(context.Background(), "carol")
	require.NoError(t, err)
	assert.Nil(t, carol)
	assert.Empty(t, app.uploadedFiles())

	// 72 bytes is still accepted.
	res = app.register("carol", "30", strings.Repeat("p", 72), "c.png")
	assert.Equal(t, "/users", res.location)
}

func TestEditProfile_RejectsOverlongPassword(t *testing.T) {
	app := newTestApp(t)
	app.register("alice", "30", "pw123", "a.png")
	app.login("alice", "pw123")

	res := app.postMultipart("/edit_profile", map[string]string{
		"name":     "alice",
		"age":      "30",
		"password": strings.Repeat("p", 73),
	}, "b.png", []byte("b"))
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/edit_profile", res.location)
	assert.Contains(t, app.get("/edit_profile").body, "Passwords must be 72 bytes or fewer.")

	alice, err := app.users.GetByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("pw123", alice.PasswordHash))
	assert.Len(t, app.uploadedFiles(), 1)
}

func TestOversizedGetIsRejectedWithoutRedirect(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/users", bytes.NewReader(make([]byte, maxBody+1)))
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}
