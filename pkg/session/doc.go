/*
Package session implements session affinity: the memory of which variant a
visitor was assigned, per experiment, for the lifetime of their session.

A single Manager is shared by the process. It serializes read-modify-write
cycles per session with ref-counted local locks (plus an optional distributed
lock for replicas) and hands out per-session Store values that keep an
in-memory mirror in front of the pluggable backend.
*/
package session
