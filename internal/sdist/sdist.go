// SPDX-License-Identifier: MPL-2.0

// Package sdist validates source distribution archives: it locates the
// PKG-INFO metadata inside a .tar.gz sdist and checks the fields a
// publishable package must carry.
package sdist

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datawire/ocibuild/pkg/python/pep345"
	"github.com/datawire/ocibuild/pkg/python/pep440"
)

type (
	// Metadata is the subset of sdist PKG-INFO fields the validator reads.
	Metadata struct {
		// Name is the distribution name.
		Name string
		// Version is the distribution version string.
		Version string
		// Summary is the one-line description.
		Summary string
		// RequiresPython is the optional interpreter constraint.
		RequiresPython string
	}

	// ValidationError aggregates everything wrong with an archive's
	// metadata.
	ValidationError struct {
		// Archive is the path of the offending archive, when known.
		Archive string
		// Problems lists the individual findings.
		Problems []string
	}
)

func (e *ValidationError) Error() string {
	where := e.Archive
	if where == "" {
		where = "sdist"
	}
	return fmt.Sprintf("%s: invalid packaging metadata: %s", where, strings.Join(e.Problems, "; "))
}

// ParseMetadata reads PKG-INFO content. The format is RFC 822 style headers,
// optionally followed by a long-description body after a blank line.
func ParseMetadata(r io.Reader) (*Metadata, error) {
	header, err := textproto.NewReader(newBufferedReader(r)).ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse PKG-INFO: %w", err)
	}
	return &Metadata{
		Name:           header.Get("Name"),
		Version:        header.Get("Version"),
		Summary:        header.Get("Summary"),
		RequiresPython: header.Get("Requires-Python"),
	}, nil
}

// ReadArchive extracts the PKG-INFO metadata from a .tar.gz sdist. The file
// is expected at the archive root or directly under the single top-level
// directory, which is where standard build tools place it.
func ReadArchive(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sdist: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read sdist %s: %w", path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sdist %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !isMetadataPath(hdr.Name) {
			continue
		}
		return ParseMetadata(tr)
	}
	return nil, fmt.Errorf("sdist %s contains no PKG-INFO", path)
}

// Validate checks the metadata a publishable sdist must carry: Name, Version
// and Summary present, Version well-formed, and (when declared) the
// Requires-Python constraint compatible with every python version the matrix
// targets.
func Validate(meta *Metadata, archive string, pythonVersions []string) error {
	verr := &ValidationError{Archive: archive}

	if meta.Name == "" {
		verr.Problems = append(verr.Problems, "missing Name")
	}
	if meta.Summary == "" {
		verr.Problems = append(verr.Problems, "missing Summary")
	}
	switch {
	case meta.Version == "":
		verr.Problems = append(verr.Problems, "missing Version")
	default:
		if _, err := pep440.ParseVersion(meta.Version); err != nil {
			verr.Problems = append(verr.Problems, fmt.Sprintf("invalid Version %q: %v", meta.Version, err))
		}
	}

	if meta.RequiresPython != "" {
		for _, pv := range pythonVersions {
			have, err := pep440.ParseVersion(pv)
			if err != nil {
				continue
			}
			ok, err := pep345.HaveRequiredPython(*have, meta.RequiresPython)
			if err != nil {
				verr.Problems = append(verr.Problems, fmt.Sprintf("invalid Requires-Python %q: %v", meta.RequiresPython, err))
				break
			}
			if !ok {
				verr.Problems = append(verr.Problems,
					fmt.Sprintf("Requires-Python %q excludes matrix python %s", meta.RequiresPython, pv))
			}
		}
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// ValidateArchive reads and validates an sdist in one step.
func ValidateArchive(path string, pythonVersions []string) (*Metadata, error) {
	meta, err := ReadArchive(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(meta, path, pythonVersions); err != nil {
		return meta, err
	}
	return meta, nil
}

// FindLatest returns the newest .tar.gz under distDir, which is where a
// packaging environment's build step leaves its output.
func FindLatest(distDir string) (string, error) {
	entries, err := os.ReadDir(distDir)
	if err != nil {
		return "", fmt.Errorf("read dist directory: %w", err)
	}

	type candidate struct {
		path string
		mod  int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path: filepath.Join(distDir, entry.Name()),
			mod:  info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no sdist archives in %s", distDir)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mod > candidates[j].mod })
	return candidates[0].path, nil
}

func newBufferedReader(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(r)
}

// isMetadataPath accepts "PKG-INFO" and "<dist>-<version>/PKG-INFO".
func isMetadataPath(name string) bool {
	name = strings.TrimPrefix(name, "./")
	if name == "PKG-INFO" {
		return true
	}
	dir, base := filepath.Split(name)
	return base == "PKG-INFO" && strings.Count(strings.TrimSuffix(dir, "/"), "/") == 0
}
