package firestore

import (
	"fmt"

	pfirestore "github.com/aistore/storefront/internal/platform/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func notFound(op, key string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, fmt.Sprintf("%s not found", key)))
}
