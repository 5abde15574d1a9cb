package core

import "errors"

// maxConflictRetries bounds the local retry budget for uniqueness races
// (path materialization, version allocation). Past the budget the
// conflict propagates to the caller.
const maxConflictRetries = 3

func isConflict(err error) bool { return errors.Is(err, ErrConflict) }
