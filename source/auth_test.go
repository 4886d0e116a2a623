package source

import (
	"testing"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/bibin-skaria/imgdump/internal/config"
)

func resource(t *testing.T, ref string) authn.Resource {
	t.Helper()
	r, err := name.ParseReference(ref)
	if err != nil {
		t.Fatal(err)
	}
	return r.Context()
}

func TestKeychainResolve(t *testing.T) {
	t.Setenv("GHCR_IO_USERNAME", "")
	t.Setenv("GHCR_IO_PASSWORD", "")
	t.Setenv("LOCALHOST_5000_TOKEN", "env-token")
	t.Setenv("DOCKER_USERNAME", "hub-user")
	t.Setenv("DOCKER_PASSWORD", "hub-pass")

	k := NewKeychain(map[string]config.RegistryAuth{
		"ghcr.io": {Username: "cfg-user", Password: "cfg-pass"},
		"quay.io": {Token: "cfg-token"},
	})
	k.fallback = nil

	tests := []struct {
		name string
		ref  string
		want authn.Authenticator
	}{
		{name: "config basic", ref: "ghcr.io/org/app", want: &authn.Basic{Username: "cfg-user", Password: "cfg-pass"}},
		{name: "config token", ref: "quay.io/org/app", want: &authn.Bearer{Token: "cfg-token"}},
		{name: "env token", ref: "localhost:5000/app", want: &authn.Bearer{Token: "env-token"}},
		{name: "docker hub env", ref: "alpine", want: &authn.Basic{Username: "hub-user", Password: "hub-pass"}},
		{name: "anonymous", ref: "registry.example.com/app", want: authn.Anonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := k.Resolve(resource(t, tt.ref))
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}

			gotCfg, err := got.Authorization()
			if err != nil {
				t.Fatal(err)
			}
			wantCfg, err := tt.want.Authorization()
			if err != nil {
				t.Fatal(err)
			}
			if *gotCfg != *wantCfg {
				t.Errorf("Resolve(%s) = %+v, want %+v", tt.ref, gotCfg, wantCfg)
			}
		})
	}
}

func TestKeychainConfigWinsOverEnvironment(t *testing.T) {
	t.Setenv("GHCR_IO_TOKEN", "env-token")

	k := NewKeychain(map[string]config.RegistryAuth{
		"ghcr.io": {Username: "cfg-user", Password: "cfg-pass"},
	})
	k.fallback = nil

	got, err := k.Resolve(resource(t, "ghcr.io/org/app"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if basic, ok := got.(*authn.Basic); !ok || basic.Username != "cfg-user" {
		t.Errorf("Resolve = %#v, want config credentials", got)
	}
}

func TestEnvPrefix(t *testing.T) {
	tests := map[string]string{
		"ghcr.io":         "GHCR_IO",
		"localhost:5000":  "LOCALHOST_5000",
		"my-registry.io":  "MY_REGISTRY_IO",
		"index.docker.io": "INDEX_DOCKER_IO",
	}
	for registry, want := range tests {
		if got := envPrefix(registry); got != want {
			t.Errorf("envPrefix(%q) = %q, want %q", registry, got, want)
		}
	}
}
