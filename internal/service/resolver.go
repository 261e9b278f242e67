package service

import (
	"CloudVault/internal/common"
	"CloudVault/internal/repo"
	"CloudVault/model"
	"context"
	"strings"

	"github.com/google/uuid"
)

type lookupMode int

const (
	lookupNone lookupMode = iota
	lookupByID
	lookupByName
)

// classifyIdentifier decides how an identifier is looked up. Names never
// parse as UUIDs, so the two modes cannot overlap.
func classifyIdentifier(identifier string) (lookupMode, string) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return lookupNone, ""
	}
	if id, err := uuid.Parse(identifier); err == nil {
		return lookupByID, id.String()
	}
	return lookupByName, identifier
}

// ResolveLocator finds a version by ID or by (name, isPublic). isPublic is
// ignored for ID lookups.
func (s *FileVersionService) ResolveLocator(ctx context.Context, identifierOrName string, isPublic bool) (*model.FileVersion, error) {
	mode, key := classifyIdentifier(identifierOrName)
	switch mode {
	case lookupByID:
		return s.repo.GetOne(ctx, key)
	case lookupByName:
		return s.repo.GetOneBy(ctx, repo.VersionQuery{Name: key, IsPublic: isPublic})
	}
	return nil, common.ErrNotFound
}
