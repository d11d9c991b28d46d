package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/syaifulazham/techlympics/apps/api/echo"
	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/user"
	emailsvc "github.com/syaifulazham/techlympics/services/email"
	boiledrepos "github.com/syaifulazham/techlympics/storage/database/sqlboiler"
	testutil "github.com/syaifulazham/techlympics/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// env is a server backed by the TEST database.
type env struct {
	app     *echoapi.Server
	conf    *core.Config
	usrRepo user.Repository
	mailSvc *emailsvc.ConsoleService
}

func setup(t *testing.T) *env {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := boiledrepos.NewUserRepository(db)

	conf := core.NewTestConfig()
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(nopLogger{})

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, nopLogger{})
	usrSvc := user.NewServiceMock(conf, usrRepo, mailSvc)

	// set up server
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         nopLogger{},
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		DisableReqLogs: true,
	})
	return &env{app: app, conf: conf, usrRepo: usrRepo, mailSvc: mailSvc}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (e *env) getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(e.conf, echoapi.GetUserClaims(e.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshalList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
