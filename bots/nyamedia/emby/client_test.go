package emby

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/", Token: "tok", TemplateUserID: "tmpl"})
}

func TestCreateUser(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/Users/New", r.URL.Path)
		require.Equal(t, "tok", r.Header.Get("X-Emby-Token"))
		var body createUserRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "alice", body.Name)
		require.Equal(t, "tmpl", body.CopyFromUserID)
		require.Equal(t, []string{"UserPolicy"}, body.UserCopyOptions)
		_, _ = w.Write([]byte(`{"Id":"u-1","Name":"alice"}`))
	})

	id, err := c.CreateUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "u-1", id)
}

func TestCreateUserRejected(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("A user with the name 'alice' already exists."))
	})

	_, err := c.CreateUser(context.Background(), "alice")
	var rejected *domain.RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Contains(t, rejected.Reason, "already exists")
}

func TestServerErrorIsExternal(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("stack trace with internals"))
	})

	_, err := c.CreateUser(context.Background(), "bob")
	var ext *domain.ExternalError
	require.True(t, errors.As(err, &ext))
	require.Equal(t, "EMBY", ext.Tag())
	require.Equal(t, http.StatusInternalServerError, ext.Status)
	require.NotContains(t, ext.Error(), "internals")
}

func TestUnauthorizedIsExternal(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Access token is invalid or expired."))
	})
	err := c.DeleteUser(context.Background(), "u-1")
	var ext *domain.ExternalError
	require.True(t, errors.As(err, &ext))
}

func TestResetPasswordAndDelete(t *testing.T) {
	var calls []string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			var body resetPasswordRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "u-1", body.ID)
			require.True(t, body.ResetPassword)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.ResetPassword(context.Background(), "u-1"))
	require.NoError(t, c.DeleteUser(context.Background(), "u-1"))
	require.Equal(t, []string{"POST /Users/u-1/Password", "DELETE /Users/u-1"}, calls)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Options{BaseURL: srv.URL, Token: "tok"})

	err := c.ResetPassword(context.Background(), "u-1")
	var ext *domain.ExternalError
	require.True(t, errors.As(err, &ext))
	require.Equal(t, "EMBY_NET", ext.Tag())
}
