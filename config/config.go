// Package config loads the session manager's on-disk defaults from
// $HOME/.testcontainers.properties, the same file and struct-tag-driven
// decoding the teacher's configureTC uses, generalized to this engine's
// Docker host and reaper settings. Environment variables always take
// precedence over the file, matching the teacher's
// applyEnvironmentConfiguration layering.
package config

import (
	"os"
	"path/filepath"

	"github.com/magiconair/properties"
)

// Config holds the handful of settings an operator can override without
// touching code: where the reaper image comes from, whether it must run
// privileged, and an explicit Docker host override.
type Config struct {
	Host           string `properties:"docker.host,default="`
	TLSVerify      bool   `properties:"docker.tls.verify,default=false"`
	CertPath       string `properties:"docker.cert.path,default="`
	RyukImage      string `properties:"ryuk.container.image,default=testcontainers/ryuk:0.5.1"`
	RyukPrivileged bool   `properties:"ryuk.container.privileged,default=false"`
	RyukDisabled   bool   `properties:"ryuk.disabled,default=false"`
}

const propertiesFileName = ".testcontainers.properties"

// Load reads $HOME/.testcontainers.properties if present, then applies
// environment-variable overrides on top. A missing or unreadable file is
// not an error — it just means every field keeps its tag default.
func Load() Config {
	cfg := Config{}

	props := properties.NewProperties()
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, propertiesFileName)
		if loaded, loadErr := properties.LoadFile(path, properties.UTF8); loadErr == nil {
			props = loaded
		}
	}
	// Decode unconditionally, even against an empty Properties: the
	// struct tags' "default=" values only take effect through Decode,
	// so a missing file must still produce the tag defaults rather than
	// a zero-valued Config.
	_ = props.Decode(&cfg)

	return applyEnvOverrides(cfg)
}

func applyEnvOverrides(cfg Config) Config {
	if host, ok := os.LookupEnv("DOCKER_HOST"); ok && host != "" {
		cfg.Host = host
	}
	if v, ok := os.LookupEnv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED"); ok {
		cfg.RyukPrivileged = v == "true"
	}
	if v, ok := os.LookupEnv("TESTCONTAINERS_RYUK_DISABLED"); ok {
		cfg.RyukDisabled = v == "true"
	}
	if img, ok := os.LookupEnv("TESTCONTAINERS_RYUK_CONTAINER_IMAGE"); ok && img != "" {
		cfg.RyukImage = img
	}
	return cfg
}
