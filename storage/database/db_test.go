package database

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syaifulazham/techlympics/core"
)

func TestDSN(t *testing.T) {
	conf := core.DatabaseConfig{
		Engine: "postgres", Host: "db", Port: 5432,
		User: "techlympics", Password: "p@ss word", AdminUser: "postgres", AdminPassword: "root",
	}

	tests := []struct {
		name       string
		admin      bool
		disableTLS bool
		wantUser   string
		wantPwd    string
		wantSSL    string
	}{
		{name: "app role", wantUser: "techlympics", wantPwd: "p@ss word", wantSSL: "require"},
		{name: "admin role", admin: true, wantUser: "postgres", wantPwd: "root", wantSSL: "require"},
		{name: "no tls", disableTLS: true, wantUser: "techlympics", wantPwd: "p@ss word", wantSSL: "disable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := conf
			c.DisableTLS = tc.disableTLS
			u, err := url.Parse(dsn(c, "techlympics_test", tc.admin))
			require.NoError(t, err)
			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db:5432", u.Host)
			assert.Equal(t, "/techlympics_test", u.Path)
			assert.Equal(t, tc.wantUser, u.User.Username())
			pwd, _ := u.User.Password()
			assert.Equal(t, tc.wantPwd, pwd)
			assert.Equal(t, tc.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
		})
	}

	// without an admin role the app role is used
	c := conf
	c.AdminUser = ""
	u, err := url.Parse(dsn(c, adminDBName, true))
	require.NoError(t, err)
	assert.Equal(t, "techlympics", u.User.Username())
}
