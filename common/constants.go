package common

import (
	"time"
)

// Overall timeout the request/reply HTTP clients use against farm services.
const DefaultClientTimeout = time.Minute
