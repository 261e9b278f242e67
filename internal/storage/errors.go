package storage

import (
	"CloudVault/internal/common"
	"errors"

	"github.com/minio/minio-go/v7"
)

// classify tags a minio error with its taxonomy sentinel and keeps the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTagged(err) {
		return err
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchObject":
		return errors.Join(common.ErrNotFound, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.Join(common.ErrPermissionDenied, err)
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return errors.Join(common.ErrConflict, err)
	}
	return errors.Join(common.ErrStorageUnavailable, err)
}

func isTagged(err error) bool {
	return errors.Is(err, common.ErrNotFound) ||
		errors.Is(err, common.ErrPermissionDenied) ||
		errors.Is(err, common.ErrConflict) ||
		errors.Is(err, common.ErrStorageUnavailable) ||
		errors.Is(err, common.ErrInvalidName)
}
