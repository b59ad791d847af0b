package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// errFSUnknown is returned by detectors on platforms without statfs support.
var errFSUnknown = errors.New("filesystem type unknown")

var remoteFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// requireLocalFS refuses database paths on network mounts, where SQLite's
// file locks cannot be trusted to serialize writers.
func requireLocalFS(path string) error {
	return requireLocalFSWith(path, detectFilesystemType)
}

func requireLocalFSWith(path string, detect func(string) (string, error)) error {
	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if errors.Is(err, errFSUnknown) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}

	if isRemoteFS(fsType) {
		return fmt.Errorf("database path %q is on network filesystem %q; point state.path at local disk", path, fsType)
	}
	return nil
}

// closestExisting walks up from path to the first entry that exists.
func closestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent directory")
		}
		p = parent
	}
}

func isRemoteFS(fsType string) bool {
	_, ok := remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return ok
}
