package storage

import (
	"CloudVault/model"
	"strings"
)

const (
	privateSuffix = ".private"
	publicSuffix  = ".public"
)

// Locator is the physical address of an object.
type Locator struct {
	Bucket string
	Key    string
}

func (l Locator) String() string {
	return l.Bucket + "/" + l.Key
}

// BucketNames returns the private and public bucket of a bucket group.
func BucketNames(group string) (private, public string) {
	return group + privateSuffix, group + publicSuffix
}

// BucketFor picks the bucket of a group for the given visibility.
func BucketFor(group string, isPublic bool) string {
	private, public := BucketNames(group)
	if isPublic {
		return public
	}
	return private
}

// ParseLocator splits a stored path "<bucket>/<key>".
func ParseLocator(path string) (Locator, bool) {
	bucket, key, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return Locator{}, false
	}
	return Locator{Bucket: bucket, Key: key}, true
}

// Locate resolves a version's locator. A recorded Path wins; otherwise the
// locator is derived from the group, visibility and name.
func Locate(group string, v *model.FileVersion) Locator {
	if loc, ok := ParseLocator(v.Path); ok {
		return loc
	}
	return Derive(group, v)
}

// Derive computes the locator from metadata only, ignoring Path.
func Derive(group string, v *model.FileVersion) Locator {
	return Locator{Bucket: BucketFor(group, v.IsPublic), Key: v.Name}
}
