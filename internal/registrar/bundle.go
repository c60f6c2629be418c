package registrar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentchain/agentchain/internal/domain/registration"
)

// File is one entry of an asset bundle, ordered by position.
type File struct {
	RelativePath string
	Data         []byte
}

// Bundle is the named, described asset content a user registers. It is
// immutable once handed to the uploader.
type Bundle struct {
	Kind        registration.Kind
	Name        string
	Description string
	Terms       registration.Terms
	Files       []File
}

// Validate checks the bundle before any network call.
func (b Bundle) Validate() error {
	if _, err := registration.ParseKind(string(b.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("bundle name is required")
	}
	if strings.TrimSpace(b.Description) == "" {
		return errors.New("bundle description is required")
	}
	if err := b.Terms.Validate(b.Kind); err != nil {
		return err
	}
	if len(b.Files) == 0 {
		return errors.New("bundle must contain at least one file")
	}
	for i, f := range b.Files {
		if strings.TrimSpace(f.RelativePath) == "" {
			return fmt.Errorf("file %d: relative path is required", i)
		}
		if strings.Contains(f.RelativePath, "..") {
			return fmt.Errorf("file %d: path must not traverse upward", i)
		}
	}
	return nil
}
