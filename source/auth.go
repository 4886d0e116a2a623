package source

import (
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/bibin-skaria/imgdump/internal/config"
)

// Keychain resolves registry credentials from, in order: the configuration
// file, <REGISTRY>_USERNAME/_PASSWORD/_TOKEN environment variables and the
// Docker credential store.
type Keychain struct {
	registries map[string]config.RegistryAuth
	fallback   authn.Keychain
}

// NewKeychain creates a keychain over the configured registry credentials
func NewKeychain(registries map[string]config.RegistryAuth) *Keychain {
	return &Keychain{
		registries: registries,
		fallback:   authn.DefaultKeychain,
	}
}

// Resolve implements authn.Keychain
func (k *Keychain) Resolve(target authn.Resource) (authn.Authenticator, error) {
	registry := target.RegistryStr()

	if auth, ok := k.fromConfig(registry); ok {
		return auth, nil
	}
	if auth, ok := fromEnvironment(registry); ok {
		return auth, nil
	}

	if k.fallback == nil {
		return authn.Anonymous, nil
	}
	return k.fallback.Resolve(target)
}

func (k *Keychain) fromConfig(registry string) (authn.Authenticator, bool) {
	for _, host := range aliases(registry) {
		regAuth, exists := k.registries[host]
		if !exists {
			continue
		}
		if auth, ok := basicOrBearer(regAuth.Username, regAuth.Password, regAuth.Token); ok {
			return auth, true
		}
	}
	return nil, false
}

func fromEnvironment(registry string) (authn.Authenticator, bool) {
	for _, host := range aliases(registry) {
		prefix := envPrefix(host)
		auth, ok := basicOrBearer(
			os.Getenv(prefix+"_USERNAME"),
			os.Getenv(prefix+"_PASSWORD"),
			os.Getenv(prefix+"_TOKEN"),
		)
		if ok {
			return auth, true
		}
	}

	if isDockerHub(registry) {
		return basicOrBearer(
			os.Getenv("DOCKER_USERNAME"),
			os.Getenv("DOCKER_PASSWORD"),
			os.Getenv("DOCKER_TOKEN"),
		)
	}

	return nil, false
}

func basicOrBearer(username, password, token string) (authn.Authenticator, bool) {
	if username != "" && password != "" {
		return &authn.Basic{Username: username, Password: password}, true
	}
	if token != "" {
		return &authn.Bearer{Token: token}, true
	}
	return nil, false
}

// envPrefix maps a registry host to its environment variable prefix:
// ghcr.io -> GHCR_IO, localhost:5000 -> LOCALHOST_5000
func envPrefix(registry string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_", ":", "_").Replace(registry))
}

func isDockerHub(registry string) bool {
	return registry == name.DefaultRegistry || registry == "docker.io"
}

// aliases lists the names a user may have configured Docker Hub under
func aliases(registry string) []string {
	if isDockerHub(registry) {
		return []string{registry, "docker.io", "index.docker.io"}
	}
	return []string{registry}
}
