// Package timex carries the one teacher time helper this gateway still
// needs: a millisecond timestamp for the MQTT bridge's state-publish
// messages (cmd/mqttconnector). The frequency-period helper the teacher
// used for PWM peripheral timing has no referent on a connector that
// drives no hardware timer, so it was dropped rather than kept unused.
package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }
