package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orakle/internal/config"
	"orakle/internal/orakleerr"
)

func manifestServer(t *testing.T, skills []SkillDescriptor) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/capabilities" {
			_ = json.NewEncoder(w).Encode(skills)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ran:" + r.URL.Path))
	}))
}

func TestCapabilities_FallsThroughToNextServer(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := manifestServer(t, []SkillDescriptor{{Name: "echo", Type: SkillRegular}})
	defer good.Close()

	c := New(config.RegistryConfig{
		Servers:    []config.SkillServer{{BaseURL: bad.URL}, {BaseURL: good.URL}},
		MaxRetries: 1,
	}, nil, nil, nil)

	skills, err := c.Capabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, skills, 1)
	require.Equal(t, "echo", skills[0].Name)
	require.Equal(t, good.URL, skills[0].ServerID)
}

func TestCapabilities_AllServersFailReturnsTransientNetwork(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := New(config.RegistryConfig{Servers: []config.SkillServer{{BaseURL: bad.URL}}, MaxRetries: 1}, nil, nil, nil)
	_, err := c.Capabilities(context.Background())
	require.Error(t, err)
	require.Equal(t, orakleerr.TransientNetwork, orakleerr.KindOf(err))
}

func TestInvoke_NonSuccessReturnsFormattedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad args"))
	}))
	defer srv.Close()

	c := New(config.RegistryConfig{Servers: []config.SkillServer{{BaseURL: srv.URL}}}, nil, nil, nil)
	skill := SkillDescriptor{Name: "echo", ServerID: srv.URL}
	_, err := c.Invoke(context.Background(), skill, map[string]any{}, time.Second)
	require.Error(t, err)
	require.Equal(t, orakleerr.SkillInvocationFailed, orakleerr.KindOf(err))
	require.Contains(t, err.Error(), "bad args")
}

func TestInvoke_SuccessReturnsBody(t *testing.T) {
	srv := manifestServer(t, nil)
	defer srv.Close()

	c := New(config.RegistryConfig{Servers: []config.SkillServer{{BaseURL: srv.URL}}}, nil, nil, nil)
	skill := SkillDescriptor{Name: "echo", ServerID: srv.URL}
	out, err := c.Invoke(context.Background(), skill, map[string]any{"x": 1}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "ran:/run/echo", out)
}
