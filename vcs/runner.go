package vcs

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// commandOutput runs an external tool in dir and returns trimmed stdout.
// On failure the tool's stderr is preferred over the raw exit error so the
// caller sees the tool's own message.
func commandOutput(dir string, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", commandErrorWithOutput(err, stderr.Bytes())
	}
	return strings.TrimSpace(string(out)), nil
}

func commandErrorWithOutput(err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return err
	}
	// Keep only the first line of multi-line tool chatter.
	if idx := strings.IndexByte(msg, '\n'); idx > 0 {
		msg = strings.TrimSpace(msg[:idx])
	}
	return fmt.Errorf("%s", msg)
}

func toolInstalled(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not installed", name)
	}
	return nil
}
