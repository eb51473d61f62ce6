// Package mqtt publishes locker fleet events to an MQTT broker.
//
// The broker is an optional, outbound-only mirror of the status stream:
// external consumers (dashboards, notification workers) can subscribe to
// lockerweb/events/# without touching the core's HTTP surface. Nothing is
// ever consumed from the broker and the core is fully functional without
// it.
//
// Connection management is delegated to paho's auto-reconnect; a Last
// Will message on lockerweb/system/status lets subscribers detect a
// crashed core.
package mqtt
