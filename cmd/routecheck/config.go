package main

import (
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codebingo/routecheck"
	"github.com/codebingo/routecheck/http"
	"github.com/pelletier/go-toml"
)

const (
	// DefaultConfigPath is the default path to the configuration file.
	DefaultConfigPath = "~/routecheck.conf"

	// DefaultURL is the address the application listens on during local development.
	DefaultURL = "http://localhost:8080"
)

// Config represents the CLI configuration file.
//
// Durations are stored as strings (e.g. "30s") and parsed by Validate().
type Config struct {
	URL          string `toml:"url"`
	Timeout      string `toml:"timeout"`
	StartupDelay string `toml:"startup-delay"`
	ReadyTimeout string `toml:"ready-timeout"`

	// Scenario filters.
	Role string `toml:"role"`
	Run  string `toml:"run"`

	DebugAddr string `toml:"debug-addr"`

	Chrome struct {
		Headless  bool   `toml:"headless"`
		NoSandbox bool   `toml:"no-sandbox"`
		ExecPath  string `toml:"exec-path"`
	} `toml:"chrome"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Rollbar struct {
		Token       string `toml:"token"`
		Environment string `toml:"environment"`
	} `toml:"rollbar"`
}

// DefaultConfig returns a new instance of Config with defaults set.
func DefaultConfig() Config {
	var config Config
	config.URL = DefaultURL
	config.Timeout = routecheck.DefaultTimeout.String()
	config.StartupDelay = "0s"
	config.ReadyTimeout = http.DefaultReadyTimeout.String()
	config.Chrome.Headless = true
	config.Log.Level = "info"
	config.Log.Format = "console"
	config.Rollbar.Environment = "development"
	return config
}

// ReadConfigFile unmarshals config from filename.
func ReadConfigFile(filename string) (Config, error) {
	config := DefaultConfig()
	if buf, err := ioutil.ReadFile(filename); err != nil {
		return config, err
	} else if err := toml.Unmarshal(buf, &config); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overrides settings from ROUTECHECK_* environment variables.
// Unset or empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(key string, p *string) {
		if v := getenv(key); v != "" {
			*p = v
		}
	}
	set("ROUTECHECK_URL", &c.URL)
	set("ROUTECHECK_TIMEOUT", &c.Timeout)
	set("ROUTECHECK_STARTUP_DELAY", &c.StartupDelay)
	set("ROUTECHECK_READY_TIMEOUT", &c.ReadyTimeout)
	set("ROUTECHECK_ROLE", &c.Role)
	set("ROUTECHECK_CHROME_PATH", &c.Chrome.ExecPath)
	set("ROUTECHECK_LOG_LEVEL", &c.Log.Level)
	set("ROUTECHECK_ROLLBAR_TOKEN", &c.Rollbar.Token)

	if v, err := strconv.ParseBool(getenv("ROUTECHECK_NO_SANDBOX")); err == nil {
		c.Chrome.NoSandbox = v
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return routecheck.Errorf(routecheck.EINVALID, "Invalid application URL: %q", c.URL)
	}

	for _, v := range []struct {
		name  string
		value string
	}{
		{"timeout", c.Timeout},
		{"startup-delay", c.StartupDelay},
		{"ready-timeout", c.ReadyTimeout},
	} {
		if v.value == "" {
			continue
		} else if d, err := time.ParseDuration(v.value); err != nil {
			return routecheck.Errorf(routecheck.EINVALID, "Invalid %s: %q", v.name, v.value)
		} else if d < 0 {
			return routecheck.Errorf(routecheck.EINVALID, "Invalid %s: must not be negative", v.name)
		}
	}

	if c.Role != "" {
		if _, err := routecheck.ParseRole(c.Role); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return routecheck.DefaultTimeout
	}
	return d
}

func (c *Config) startupDelay() time.Duration {
	d, _ := time.ParseDuration(c.StartupDelay)
	return d
}

// readyTimeout returns the maximum wait for the application. Zero disables
// the readiness probe.
func (c *Config) readyTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadyTimeout)
	return d
}

// expand returns path using tilde expansion. This means that a file path that
// begins with the "~" will be expanded to prefix the user's home directory.
func expand(path string) (string, error) {
	// Ignore if path has no leading tilde.
	if path != "~" && !strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return path, nil
	}

	// Fetch the current user to determine the home path.
	u, err := user.Current()
	if err != nil {
		return path, err
	} else if u.HomeDir == "" {
		return path, fmt.Errorf("home directory unset")
	}

	if path == "~" {
		return u.HomeDir, nil
	}
	return filepath.Join(u.HomeDir, strings.TrimPrefix(path, "~"+string(os.PathSeparator))), nil
}
