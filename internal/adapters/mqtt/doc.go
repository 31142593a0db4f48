// Package mqtt publishes readings to an MQTT v5 broker such as AWS IoT
// Core.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection in the background. Readings are
// sent at QoS 1 straight on the live connection, never through autopaho's
// queue: a publish either receives its PUBACK or returns an error, and a
// reading that could not be delivered is dropped rather than retried.
package mqtt
