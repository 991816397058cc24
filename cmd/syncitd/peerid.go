package main

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// loadOrCreatePeerID reads a persisted peer id from path, generating and
// writing a fresh one on first run. The id must survive restarts since
// rumors carry UpdateBy and gossip Except fields keyed on it.
func loadOrCreatePeerID(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if id == "" {
			return "", errors.Errorf("syncitd: peer id file %q is empty", path)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "syncitd: read peer id file %q", path)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", errors.Wrapf(err, "syncitd: write peer id file %q", path)
	}
	return id, nil
}
