package bridge

import "errors"

// ErrSerializationFailed indicates a record could not be encoded for
// publishing (the info document is the only JSON payload).
var ErrSerializationFailed = errors.New("bridge: serialization failed")
