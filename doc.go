/*
Package drawrelay is a relay server for shared whiteboards.

Browser clients connect with websockets and send drawing events as JSON
frames of the form {"event": "startDrawing", "data": {...}}. Every event is
sent, with its payload untouched, to all the other connected clients. The
server keeps no drawing state.

Architecturally, it uses gorilla websockets and follows closely the hub and client example
given at https://github.com/gorilla/websocket/tree/master/examples/chat

A hub goroutine owns the list of connected clients. Connects, disconnects and
broadcasts are closures run by that goroutine one after another, so each
client receives events in the order the hub processed them.

Clients each run one goroutine for receiving messages, and one goroutine for sending.

Optionally, a PeerBus (RedisPeerBus is provided) shares events between
several relay processes.
*/
package drawrelay
