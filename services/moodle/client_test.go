package moodlesvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/moodle"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// fakeMoodle answers web service calls with canned bodies keyed by wsfunction.
type fakeMoodle struct {
	mu      sync.Mutex
	replies map[string]string
	calls   []url.Values
}

func (f *fakeMoodle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != restPath || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, r.PostForm)
	reply, ok := f.replies[r.PostForm.Get("wsfunction")]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("wstoken") != "secret" {
		_, _ = w.Write([]byte(`{"exception":"moodle_exception","errorcode":"invalidtoken","message":"Invalid token - token not found"}`))
		return
	}
	if !ok {
		_, _ = w.Write([]byte(`{"exception":"dml_missing_record_exception","errorcode":"invalidrecord","message":"Can't find data record in database table external_functions."}`))
		return
	}
	_, _ = w.Write([]byte(reply))
}

func (f *fakeMoodle) lastCall() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestClient(t *testing.T, replies map[string]string, token ...string) (*Client, *fakeMoodle) {
	fake := &fakeMoodle{replies: replies}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tok := "secret"
	if len(token) > 0 {
		tok = token[0]
	}
	conf := core.MoodleConfig{URL: srv.URL + "/", Token: tok, Timeout: 5 * time.Second}
	return NewClient(conf, nopLogger{}), fake
}

func TestClientNotConfigured(t *testing.T) {
	c := NewClient(core.MoodleConfig{}, nopLogger{})
	_, err := c.CheckUserExists(context.Background(), "a@b.c")
	assert.Equal(t, moodle.ErrNotConfigured, errors.Cause(err))
	assert.Equal(t, moodle.ErrNotConfigured, errors.Cause(c.DeleteUser(context.Background(), 1)))
}

func TestClientAPIError(t *testing.T) {
	c, _ := newTestClient(t, nil, "wrong")
	_, err := c.GetUserPreferences(context.Background(), 3)
	var apiErr *moodle.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalidtoken", apiErr.Code)
	assert.Equal(t, "Invalid token - token not found", apiErr.Message)
}

func TestCheckUserExists(t *testing.T) {
	t.Run("found by criteria", func(t *testing.T) {
		c, fake := newTestClient(t, map[string]string{
			"core_user_get_users": `{"users":[{"id":12,"username":"aina1234","email":"aina@example.com","auth":"manual","confirmed":true}],"warnings":[]}`,
		})
		usr, err := c.CheckUserExists(context.Background(), " AINA@example.com ")
		require.NoError(t, err)
		assert.Equal(t, 12, usr.ID)
		assert.Equal(t, "aina1234", usr.Username)
		assert.True(t, usr.Confirmed)

		form := fake.lastCall()
		assert.Equal(t, "core_user_get_users", form.Get("wsfunction"))
		assert.Equal(t, "json", form.Get("moodlewsrestformat"))
		assert.Equal(t, "email", form.Get("criteria[0][key]"))
		assert.Equal(t, "aina@example.com", form.Get("criteria[0][value]"))
	})

	t.Run("found by field", func(t *testing.T) {
		c, fake := newTestClient(t, map[string]string{
			"core_user_get_users":          `{"users":[],"warnings":[]}`,
			"core_user_get_users_by_field": `[{"id":13,"username":"badrul","email":"badrul@example.com"}]`,
		})
		usr, err := c.CheckUserExists(context.Background(), "badrul@example.com")
		require.NoError(t, err)
		assert.Equal(t, 13, usr.ID)

		form := fake.lastCall()
		assert.Equal(t, "email", form.Get("field"))
		assert.Equal(t, "badrul@example.com", form.Get("values[0]"))
	})

	t.Run("not found", func(t *testing.T) {
		c, fake := newTestClient(t, map[string]string{
			"core_user_get_users_by_field": `[]`,
		})
		_, err := c.CheckUserExists(context.Background(), "ghost@example.com")
		assert.Equal(t, moodle.ErrUserNotFound, errors.Cause(err))
		assert.Len(t, fake.calls, 2)
	})
}

func TestCreateUser(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"core_user_create_users": `[{"id":21,"username":"team1234"}]`,
	})
	nu := moodle.NewUser{Username: "team1234", Password: "S3cretPass", FirstName: "Robo", LastName: "7", Email: "team@example.com"}
	usr, err := c.CreateUser(context.Background(), nu)
	require.NoError(t, err)
	assert.Equal(t, moodle.User{ID: 21, Username: "team1234", FirstName: "Robo", LastName: "7", Email: "team@example.com", Auth: "manual"}, usr)

	form := fake.lastCall()
	assert.Equal(t, "team1234", form.Get("users[0][username]"))
	assert.Equal(t, "S3cretPass", form.Get("users[0][password]"))
	assert.Equal(t, "manual", form.Get("users[0][auth]"))
	assert.Equal(t, "Asia/Kuala_Lumpur", form.Get("users[0][timezone]"))
	assert.Equal(t, "MY", form.Get("users[0][country]"))
	assert.Equal(t, "1", form.Get("users[0][mailformat]"))
}

func TestCreateUserEmptyReply(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{"core_user_create_users": `[]`})
	_, err := c.CreateUser(context.Background(), moodle.NewUser{Username: "x", Email: "x@y.z"})
	var apiErr *moodle.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestUserPreferences(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"core_user_get_user_preferences": `{"preferences":[{"name":"auth_forcepasswordchange","value":"1"},{"name":"email_bounce_count","value":0}],"warnings":[]}`,
		"core_user_set_user_preferences": `{"saved":[{"name":"auth_forcepasswordchange","userid":21}],"warnings":[]}`,
		"core_user_delete_users":         `null`,
	})
	ctx := context.Background()

	prefs, err := c.GetUserPreferences(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"auth_forcepasswordchange": "1", "email_bounce_count": "0"}, prefs)
	assert.Equal(t, "21", fake.lastCall().Get("userid"))

	require.NoError(t, c.SetUserPreferences(ctx, 21, map[string]string{"auth_forcepasswordchange": "0"}))
	form := fake.lastCall()
	assert.Equal(t, "auth_forcepasswordchange", form.Get("preferences[0][name]"))
	assert.Equal(t, "0", form.Get("preferences[0][value]"))
	assert.Equal(t, "21", form.Get("preferences[0][userid]"))

	calls := len(fake.calls)
	require.NoError(t, c.SetUserPreferences(ctx, 21, nil))
	assert.Len(t, fake.calls, calls)

	require.NoError(t, c.DeleteUser(ctx, 21))
	assert.Equal(t, "21", fake.lastCall().Get("userids[0]"))
}
