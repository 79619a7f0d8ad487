// Package session guards the engine behind the lifetime of a build
// connection.
//
// A Manager hands out Connections. A Connection is alive until Close is
// called; from then on every Resolve fails with ConnectionClosedError
// instead of reaching the engine. Close waits for resolutions already in
// flight before the connection counts as closed, and the Manager refuses
// new connections while any connection is still tearing down.
//
// Lifecycle:
//
//	alive --Close--> closing --in-flight done--> closed
package session
