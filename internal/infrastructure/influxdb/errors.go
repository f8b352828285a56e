package influxdb

import "errors"

// Sentinel errors, matched with errors.Is. Write failures are delivered
// through the SetOnError callback instead because writes are batched
// and acknowledged asynchronously.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
