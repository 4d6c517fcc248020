// Package pool keeps the live upstream connections of one listener.
//
// Connections are created lazily from the targets held by a Store and cached by
// target name until removed. A Pool is not safe for concurrent use; callers run
// one owner goroutine per listener.
package pool
