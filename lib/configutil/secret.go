package configutil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/titanous/json5"
)

// Secret is a credential field that accepts either the literal value
// or a shell command that prints it:
//
//	password: "hunter2"
//	password: { exec: "pass show school/jiaowu" }
type Secret struct {
	Plain string
	Exec  string
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json5.Unmarshal(data, &plain); err == nil {
		s.Plain = plain
		return nil
	}

	var wrapped struct {
		Exec string `json:"exec"`
	}
	err := json5.Unmarshal(data, &wrapped)
	if err != nil {
		return err
	}
	if wrapped.Exec == "" {
		return fmt.Errorf("a secret must be a string or an object with an 'exec' key")
	}
	s.Exec = wrapped.Exec
	return nil
}

// Resolve produces the secret's value. A literal value wins, then the
// trimmed stdout of the exec command, then the environment variable
// named by `env`.
func (s Secret) Resolve(env string) (string, error) {
	if s.Plain != "" {
		return s.Plain, nil
	}
	if s.Exec != "" {
		out, err := exec.Command("sh", "-c", s.Exec).Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
				return "", fmt.Errorf("secret command: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
			}
			return "", fmt.Errorf("secret command: %w", err)
		}
		return strings.TrimSpace(string(out)), nil
	}
	if env != "" {
		if value, ok := os.LookupEnv(env); ok && value != "" {
			return value, nil
		}
		return "", fmt.Errorf("secret has no value, set it in the config or via $%s", env)
	}
	return "", fmt.Errorf("secret has no value")
}
