package pubsub

import "errors"

// ErrClosed is returned by Publish and Subscribe after Close. The server
// closes the pub/sub during shutdown, so late room traffic gets this rather
// than a hang.
var ErrClosed = errors.New("pubsub: closed")
