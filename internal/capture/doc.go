// Package capture provides frame.Source implementations: a synthetic
// generator for bench runs and demos, and a replay source that decodes a
// directory of still images.
//
// Every source spawns exactly one goroutine per Start, sends into a channel of
// capacity frame.QueueCapacity with blocking sends, and closes the channel when
// it runs out of frames or its context is cancelled.
package capture

import "github.com/banshee-data/lanespray/internal/monitoring"

var log = monitoring.Component("capture")
