package moodlesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/moodle"
)

const restPath = "/webservice/rest/server.php"

// Client calls the Moodle REST web service with form encoded requests.
type Client struct {
	baseURL string
	token   string
	rc      *rest.Client
	logger  core.Logger
}

var _ moodle.Client = (*Client)(nil)

func NewClient(conf core.MoodleConfig, logger core.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(conf.URL, "/"),
		token:   conf.Token,
		rc:      &rest.Client{HTTPClient: &http.Client{Timeout: conf.Timeout}},
		logger:  logger,
	}
}

// params holds the wsfunction arguments. Lists of records are flattened as key[i][field].
type params url.Values

func (p params) set(key string, value interface{}) params {
	url.Values(p).Set(key, fmt.Sprint(value))
	return p
}

func (p params) setList(key string, values ...interface{}) params {
	for i, v := range values {
		url.Values(p).Set(fmt.Sprintf("%s[%d]", key, i), fmt.Sprint(v))
	}
	return p
}

func (p params) setRecords(key string, records ...map[string]interface{}) params {
	for i, rec := range records {
		for field, v := range rec {
			url.Values(p).Set(fmt.Sprintf("%s[%d][%s]", key, i, field), fmt.Sprint(v))
		}
	}
	return p
}

// envelope is the error payload Moodle returns with a 200 status.
type envelope struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// call runs a web service function and decodes its JSON result into dst (may be nil).
func (c *Client) call(ctx context.Context, function string, args params, dst interface{}) error {
	if c.baseURL == "" || c.token == "" {
		return moodle.ErrNotConfigured
	}

	form := url.Values(args)
	if form == nil {
		form = url.Values{}
	}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", function)
	form.Set("moodlewsrestformat", "json")

	req := rest.Request{
		Method:  rest.Post,
		BaseURL: c.baseURL + restPath,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Accept":       "application/json",
		},
		Body: []byte(form.Encode()),
	}
	res, err := c.rc.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrap(err, function)
	}

	body := bytes.TrimSpace([]byte(res.Body))
	if bytes.HasPrefix(body, []byte("{")) {
		var env envelope
		if err := json.Unmarshal(body, &env); err == nil && (env.Exception != "" || env.Error != "") {
			return c.apiError(function, env)
		}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("%s: status %d: %s", function, res.StatusCode, truncate(res.Body, 200))
	}
	if dst == nil || len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(body, dst), "%s: decoding response", function)
}

func (c *Client) apiError(function string, env envelope) error {
	apiErr := &moodle.APIError{Code: env.ErrorCode, Message: env.Message}
	if apiErr.Message == "" {
		apiErr.Message = env.Error
	}
	c.logger.Warn("moodle web service error", apiErr, map[string]interface{}{"function": function})
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Client) CheckUserExists(ctx context.Context, email string) (moodle.User, error) {
	email = moodle.NormalizeEmail(email)

	var res struct {
		Users []moodle.User `json:"users"`
	}
	args := params{}.setRecords("criteria", map[string]interface{}{"key": "email", "value": email})
	err := c.call(ctx, "core_user_get_users", args, &res)
	switch {
	case errors.Cause(err) == moodle.ErrNotConfigured:
		return moodle.User{}, err
	case err == nil && len(res.Users) > 0:
		return res.Users[0], nil
	}

	// some sites refuse the email criterion: search by field
	var users []moodle.User
	args = params{}.set("field", "email").setList("values", email)
	if err := c.call(ctx, "core_user_get_users_by_field", args, &users); err != nil {
		return moodle.User{}, err
	}
	if len(users) == 0 {
		return moodle.User{}, moodle.ErrUserNotFound
	}
	return users[0], nil
}

func (c *Client) CreateUser(ctx context.Context, nu moodle.NewUser) (moodle.User, error) {
	rec := map[string]interface{}{
		"username":     nu.Username,
		"password":     nu.Password,
		"firstname":    nu.FirstName,
		"lastname":     nu.LastName,
		"email":        nu.Email,
		"auth":         moodle.AuthManual,
		"lang":         moodle.DefaultLang,
		"calendartype": "gregorian",
		"timezone":     moodle.DefaultTZ,
		"mailformat":   1,
		"country":      moodle.DefaultCntry,
	}

	var created []moodle.User
	if err := c.call(ctx, "core_user_create_users", params{}.setRecords("users", rec), &created); err != nil {
		return moodle.User{}, err
	}
	if len(created) == 0 {
		return moodle.User{}, &moodle.APIError{Message: "no user was created"}
	}
	usr := created[0]
	usr.FirstName = nu.FirstName
	usr.LastName = nu.LastName
	usr.Email = nu.Email
	usr.Auth = moodle.AuthManual
	return usr, nil
}

func (c *Client) GetUserPreferences(ctx context.Context, userID int) (map[string]string, error) {
	var res struct {
		Preferences []struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		} `json:"preferences"`
	}
	if err := c.call(ctx, "core_user_get_user_preferences", params{}.set("userid", userID), &res); err != nil {
		return nil, err
	}

	prefs := make(map[string]string, len(res.Preferences))
	for _, p := range res.Preferences {
		var s string
		if err := json.Unmarshal(p.Value, &s); err != nil {
			s = string(p.Value) // numbers and booleans
		}
		prefs[p.Name] = s
	}
	return prefs, nil
}

func (c *Client) SetUserPreferences(ctx context.Context, userID int, prefs map[string]string) error {
	if len(prefs) == 0 {
		return nil
	}
	recs := make([]map[string]interface{}, 0, len(prefs))
	for name, value := range prefs {
		recs = append(recs, map[string]interface{}{"name": name, "value": value, "userid": userID})
	}
	return c.call(ctx, "core_user_set_user_preferences", params{}.setRecords("preferences", recs...), nil)
}

func (c *Client) DeleteUser(ctx context.Context, userID int) error {
	return c.call(ctx, "core_user_delete_users", params{}.setList("userids", strconv.Itoa(userID)), nil)
}
