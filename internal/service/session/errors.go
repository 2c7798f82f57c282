package session

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession is returned when an echo is requested without a live conversation.
var ErrNoActiveSession = errors.New("no active conversation — start a new session")

// TransportLoadError reports that the embedded room widget could not be loaded in the page.
type TransportLoadError struct {
	Detail string
}

func (e *TransportLoadError) Error() string {
	return fmt.Sprintf("Daily JS load failed: %s", e.Detail)
}
