/*
Package session serializes access to persisted keys.

The Manager wraps a ports.KeyValueStore with per-key locks so that concurrent
writers inside one process never interleave, and optionally with a
ports.DistributedLocker so that several processes sharing one store (for
example a redis instance behind `headless serve` replicas) coordinate too.
*/
package session
