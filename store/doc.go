// Package store keeps upstream target definitions per listener.
//
// Every stored target owns a generation context. Replacing or removing a target
// cancels its generation, which tears down connections derived from it.
package store
