package fallback

import "time"

// Clock supplies the current time. Injected for deterministic expiry and
// timestamp behavior in tests; defaults to time.Now everywhere.
type Clock func() time.Time
