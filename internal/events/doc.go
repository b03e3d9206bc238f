// Package events fans applied device transitions out to slow sinks.
//
// Machines notify observers while holding their lock, so the observer
// must never block. Bus.Publish only enqueues onto a bounded channel; a
// single goroutine started by Bus.Run drains it and calls each
// subscribed Handler in registration order. When the channel is full the
// event is dropped and counted instead of stalling the device.
//
// Typical subscribers are the MQTT state publisher, the InfluxDB writer,
// the SQLite history mirror, the WebSocket hub and metrics.
package events
