// Package server implements the transport layer and connection lifecycle of
// the Mingle realtime service.
//
// It upgrades websocket connections (gated by the origin allow-list), runs
// the hub that serializes all presence and room mutations, and pushes
// routed events back out through per-connection write pumps. The companion
// packages internal/presence, internal/rooms, internal/protocol, and
// internal/router hold the registries, wire contract, and recipient
// computation; this package wires them to live sockets.
package server
