// Package ws streams store status to websocket clients.
//
// The Hub sends the current status snapshot as soon as a client connects
// and again on every tick of its interval. Clients whose send buffer fills
// up are dropped. Cancelling the context passed to Run closes every client.
package ws
