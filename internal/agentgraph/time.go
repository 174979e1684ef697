package agentgraph

import "time"

// timeNow is a package-level indirection so tests can pin the clock the
// same way episodic.Cache accepts an injected now func.
var timeNow = func() time.Time { return time.Now().UTC() }
