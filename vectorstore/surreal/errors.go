package surreal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/enrich/core"
	"github.com/surrealdb/surrealdb.go"
)

// ErrInvalidCollectionName indicates a collection name that cannot be used as a table name.
var ErrInvalidCollectionName = fmt.Errorf("%w: collection names may only contain letters, digits and underscores", core.ErrValidation)

// wrapQueryError turns SurrealDB failures into external service errors,
// keeping the database message when one is available.
func wrapQueryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := strings.TrimSpace(queryErr.Message)
		return core.ExternalServiceError("surrealdb", fmt.Errorf("%s: %s", op, msg))
	}
	return core.ExternalServiceError("surrealdb", fmt.Errorf("%s: %w", op, err))
}
