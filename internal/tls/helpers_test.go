package tls

import "time"

func testNotAfter() time.Time { return time.Now().Add(24 * time.Hour) }
