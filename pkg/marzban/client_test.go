package marzban

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeMarzban(t *testing.T) (*httptest.Server, map[string]*User) {
	t.Helper()
	users := map[string]*User{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.FormValue("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "token_type": "bearer"})
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		var u User
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&u))
		u.SubscriptionURL = "/sub/" + u.Username
		users[u.Username] = &u
		_ = json.NewEncoder(w).Encode(u)
	})
	mux.HandleFunc("/api/user/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/api/user/")
		u, ok := users[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(u)
		case http.MethodPut:
			var upd User
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			u.Expire = upd.Expire
			u.DataLimit = upd.DataLimit
			u.Status = upd.Status
			_ = json.NewEncoder(w).Encode(u)
		case http.MethodDelete:
			delete(users, name)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, users
}

func TestUserLifecycle(t *testing.T) {
	srv, users := newFakeMarzban(t)
	ctx := context.Background()
	c := NewClient(srv.URL, "admin", "pw")

	created, err := c.CreateUser(ctx, &User{Username: "u42", Expire: 1700000000, DataLimit: 1024})
	require.NoError(t, err)
	assert.Equal(t, "/sub/u42", created.SubscriptionURL)
	assert.Contains(t, users["u42"].Proxies, "vless")

	got, err := c.GetUser(ctx, "u42")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got.Expire)

	modified, err := c.ModifyUser(ctx, &User{Username: "u42", Expire: 1800000000, DataLimit: 2048, Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, int64(2048), modified.DataLimit)

	require.NoError(t, c.DeleteUser(ctx, "u42"))
	_, err = c.GetUser(ctx, "u42")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLoginFailure(t *testing.T) {
	srv, _ := newFakeMarzban(t)
	c := NewClient(srv.URL, "admin", "wrong")

	_, err := c.GetUser(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
}
