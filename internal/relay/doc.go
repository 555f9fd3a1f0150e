// Package relay implements the room registry, broadcast engine, and
// per-connection session loop of the room relay.
//
// A Registry maps room identifiers to the connections currently joined under
// each client identifier. A Broadcaster reads a room's member snapshot from
// the registry and delivers one message to every member, formatting the copy
// sent back to the sender differently from the copies sent to its peers. A
// Session drives one connection from join to disconnect and guarantees that
// the connection leaves the registry exactly once.
//
// The package knows nothing about the transport. Anything that can send a
// text frame, block for the next inbound frame, and close itself satisfies
// Conn.
//
// Usage:
//
//	reg := relay.NewRegistry(relay.WithLogger(logger))
//	bc := relay.NewBroadcaster(reg, relay.WithLogger(logger))
//
//	sess := relay.NewSession(relay.SessionParams{
//		RoomID:      "r1",
//		ClientID:    "alice",
//		Conn:        conn,
//		Registry:    reg,
//		Broadcaster: bc,
//	})
//	err := sess.Run(ctx)
//
// Concurrency:
//
// Each Session runs on its own goroutine and shares nothing with other
// sessions except the Registry. The registry guards its room map with one
// lock and each room's members with another, so traffic in one room does not
// wait on membership changes in a different room.
package relay
