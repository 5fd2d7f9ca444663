// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the verification client and service-to-service
// calls. Learner verification servers are expected to answer fast; anything
// slower than this is treated as a transport failure.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
