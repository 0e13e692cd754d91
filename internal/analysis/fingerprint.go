package analysis

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the names and contents of the peer logs in dir in node
// order. Two analyses of the same fingerprint see the same input.
func Fingerprint(dir string) (string, error) {
	nodes, paths, err := LogFiles(dir)
	if err != nil {
		return "", err
	}
	h := blake3.New()
	for _, id := range nodes {
		fmt.Fprintf(h, "%s\x00", filepath.Base(paths[id]))
		if err := hashFile(h, paths[id]); err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
