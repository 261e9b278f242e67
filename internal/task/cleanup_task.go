package task

import (
	"CloudVault/internal/common"
	"CloudVault/internal/storage"
	"CloudVault/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrObjectReferenced means a live version still records the object a cleanup
// task targets. The task is obsolete and must not remove anything.
var ErrObjectReferenced = errors.New("object still referenced")

// CleanupMessage asks the worker to remove an object whose metadata is gone.
type CleanupMessage struct {
	VersionID  string    `json:"version_id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	IsPublic   bool      `json:"is_public"`
	Reason     string    `json:"reason"`
	Attempt    int       `json:"attempt"`
	ReportedAt time.Time `json:"reported_at"`
}

// Version rebuilds enough of the file version for the backend to locate it.
func (m CleanupMessage) Version() *model.FileVersion {
	return &model.FileVersion{ID: m.VersionID, Name: m.Name, Path: m.Path, IsPublic: m.IsPublic}
}

// TaskPublisher publishes a serialized task.
type TaskPublisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// CleanupPublisher reports orphaned objects to the cleanup queue.
type CleanupPublisher struct {
	publisher TaskPublisher
	now       func() time.Time
}

func NewCleanupPublisher(publisher TaskPublisher) *CleanupPublisher {
	return &CleanupPublisher{publisher: publisher, now: time.Now}
}

// ReportOrphan enqueues removal of v's object.
func (p *CleanupPublisher) ReportOrphan(ctx context.Context, v *model.FileVersion, cause error) error {
	msg := CleanupMessage{
		VersionID:  v.ID,
		Name:       v.Name,
		Path:       v.Path,
		IsPublic:   v.IsPublic,
		ReportedAt: p.now().UTC(),
	}
	if cause != nil {
		msg.Reason = cause.Error()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := p.publisher.PublishTask(ctx, body); err != nil {
		return fmt.Errorf("publish cleanup task: %w", err)
	}
	return nil
}

// PathLookup finds the live version whose recorded path is a locator.
type PathLookup interface {
	GetOneByPath(ctx context.Context, path string) (*model.FileVersion, error)
}

// ProcessCleanupTask removes the object named by msg. A missing object counts
// as removed. When versions is set, an object still recorded by a live
// version is left alone and ErrObjectReferenced is returned.
func ProcessCleanupTask(ctx context.Context, backend storage.Backend, versions PathLookup, msg CleanupMessage) error {
	v := msg.Version()
	if versions != nil {
		loc := backend.Locate(v).String()
		owner, err := versions.GetOneByPath(ctx, loc)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s belongs to version %s", ErrObjectReferenced, loc, owner.ID)
		case !errors.Is(err, common.ErrNotFound):
			return fmt.Errorf("look up %s: %w", loc, err)
		}
	}
	return backend.RemoveObjects(ctx, v)
}
