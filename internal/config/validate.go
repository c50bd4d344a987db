package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}
	if c.Server.ReadHeaderTimeout < 0 {
		v.Add("server.readHeaderTimeout must be >= 0")
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			v.Add("server.tls.certFile required when tls.enabled is true")
		}
		if c.Server.TLS.KeyFile == "" {
			v.Add("server.tls.keyFile required when tls.enabled is true")
		}
		if c.Server.TLS.CertFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.CertFile)); err != nil {
				v.Add("server.tls.certFile invalid: %v", err)
			}
		}
		if c.Server.TLS.KeyFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.KeyFile)); err != nil {
				v.Add("server.tls.keyFile invalid: %v", err)
			}
		}
	}

	if c.Store.Path == "" {
		v.Add("store.path is required")
	} else if err := ensureStorePath(c.resolvePath(c.Store.Path)); err != nil {
		v.Add("store.path invalid: %v", err)
	}

	if c.Guard.Enabled {
		if c.Guard.Upstream == "" {
			v.Add("guard.upstream is required when guard.enabled is true")
		} else if err := validateURL(c.Guard.Upstream); err != nil {
			v.Add("guard.upstream invalid: %v", err)
		}
		for i, prefix := range c.Guard.Protect {
			if !strings.HasPrefix(prefix, "/") {
				v.Add("guard.protect[%d] must start with /", i)
			}
		}
	}
	if c.Guard.BlockStatusCode < 400 || c.Guard.BlockStatusCode > 599 {
		v.Add("guard.blockStatusCode must be between 400 and 599")
	}
	if c.Guard.Timeout < 0 {
		v.Add("guard.timeout must be >= 0")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		v.Add("logging.level invalid: %v", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		v.Add("logging.format must be text|json")
	}
	if c.Logging.DecisionLog != "" {
		if err := ensureWritable(c.resolvePath(c.Logging.DecisionLog)); err != nil {
			v.Add("logging.decisionLog invalid: %v", err)
		}
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		v.Add("logging rotation limits must be >= 0")
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		}
	}

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// ensureStorePath accepts an existing regular file or a missing file in a
// writable directory. A missing store reads as an empty rule set.
func ensureStorePath(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		return ensureWritable(path)
	default:
		return err
	}
}

// ensureWritable checks that a file can be created next to path. A missing
// directory is accepted when its parent is writable.
func ensureWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return ensureWritable(dir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	file, err := os.CreateTemp(dir, "waflite-validate-*")
	if err != nil {
		return err
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
