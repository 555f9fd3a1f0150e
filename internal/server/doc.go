// Package server implements the HTTP and WebSocket outer layer of the room relay.
//
// The implementation is organized into specialized files for configuration,
// logging, the hub that runs relay sessions, the WebSocket client adapter,
// routing, and HTTP handlers. Room membership and message fan-out live in
// package relay; this package only accepts connections and feeds them in.
package server
