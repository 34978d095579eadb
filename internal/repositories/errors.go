package repositories

import "errors"

func asRepositoryError(err error, target *RepositoryError) bool {
	return err != nil && errors.As(err, target)
}

// IsConflict reports whether err is a repository conflict error.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return asRepositoryError(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err signals a transient backend failure.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return asRepositoryError(err, &repoErr) && repoErr.IsUnavailable()
}
