package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	require.True(t, StatusSubmitted.CanTransition(StatusArchived))
	require.True(t, StatusSubmitted.CanTransition(StatusInvalid))
	require.False(t, StatusSubmitted.CanTransition(StatusSubmitted))
	require.False(t, StatusArchived.CanTransition(StatusCancelled))
	require.False(t, StatusCancelled.CanTransition(StatusArchived))
	require.False(t, StatusSubmitted.Terminal())
}

func TestStatusJSONAcceptsNumberAndName(t *testing.T) {
	var body struct {
		A Status `json:"a"`
		B Status `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":2,"b":"Archived"}`), &body))
	require.Equal(t, StatusCancelled, body.A)
	require.Equal(t, StatusArchived, body.B)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"cancelled","b":"archived"}`, string(out))

	var s Status
	require.Error(t, json.Unmarshal([]byte(`7`), &s))
	require.Error(t, json.Unmarshal([]byte(`"pending"`), &s))
	require.Error(t, json.Unmarshal([]byte(`1.5`), &s))
}

func TestSourceRoundTrip(t *testing.T) {
	tag := SourceTag(ProviderBGM, KindTV)
	require.Equal(t, "BGM.TV/TV", tag)
	p, k, err := ParseSource(tag)
	require.NoError(t, err)
	require.Equal(t, ProviderBGM, p)
	require.Equal(t, KindTV, k)

	_, _, err = ParseSource("IMDB/MOVIE")
	require.Error(t, err)
	_, _, err = ParseSource("TMDB")
	require.Error(t, err)

	k, ok := ParseKind("电视剧")
	require.True(t, ok)
	require.Equal(t, "电视剧", k.Label())
}

func TestErrorTags(t *testing.T) {
	ext := &ExternalError{Service: "emby", Code: "EMBY", Err: errors.New("dial tcp: refused")}
	var tagged interface{ Tag() string }
	require.True(t, errors.As(error(ext), &tagged))
	require.Equal(t, "EMBY", tagged.Tag())

	wrapped := &PersistenceError{Op: "insert", Err: ErrDuplicateRequest}
	require.ErrorIs(t, wrapped, ErrDuplicateRequest)
}
