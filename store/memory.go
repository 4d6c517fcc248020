package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/viant/mcprelay/target"
)

// Entry is a target together with its generation.
type Entry struct {
	Target     target.Target
	Generation context.Context
	ID         string
}

// ChangeType describes how a target changed.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeRemoved ChangeType = "removed"
)

// Change is published to subscribers after the store has been updated.
type Change struct {
	Listener string
	Name     string
	Type     ChangeType
}

type record struct {
	entry  Entry
	cancel context.CancelFunc
}

type listener struct {
	order   []string
	records map[string]*record
}

// Memory is an in-memory store; targets keep insertion order per listener.
type Memory struct {
	mux         sync.RWMutex
	listeners   map[string]*listener
	subscribers map[int]chan Change
	nextID      int
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{listeners: map[string]*listener{}, subscribers: map[int]chan Change{}}
}

// Get returns the named target of a listener.
func (m *Memory) Get(listenerName, name string) (Entry, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if l, ok := m.listeners[listenerName]; ok {
		if r, ok := l.records[name]; ok {
			return r.entry, true
		}
	}
	return Entry{}, false
}

// Targets returns a snapshot of a listener's targets in insertion order.
func (m *Memory) Targets(listenerName string) []Entry {
	m.mux.RLock()
	defer m.mux.RUnlock()
	l, ok := m.listeners[listenerName]
	if !ok {
		return nil
	}
	ret := make([]Entry, 0, len(l.order))
	for _, name := range l.order {
		ret = append(ret, l.records[name].entry)
	}
	return ret
}

// Listeners returns the names of listeners holding at least one target.
func (m *Memory) Listeners() []string {
	m.mux.RLock()
	defer m.mux.RUnlock()
	var ret []string
	for name, l := range m.listeners {
		if len(l.order) > 0 {
			ret = append(ret, name)
		}
	}
	return ret
}

// Upsert adds or replaces a target. Replacing a target with a different definition
// cancels the previous generation; an identical definition keeps it.
func (m *Memory) Upsert(listenerName string, aTarget target.Target) error {
	if err := aTarget.Validate(); err != nil {
		return err
	}
	m.mux.Lock()
	change, ok := m.upsert(listenerName, aTarget)
	m.mux.Unlock()
	if ok {
		m.publish(change)
	}
	return nil
}

// Remove deletes a target and cancels its generation.
func (m *Memory) Remove(listenerName, name string) bool {
	m.mux.Lock()
	removed := m.remove(listenerName, name)
	m.mux.Unlock()
	if removed {
		m.publish(Change{Listener: listenerName, Name: name, Type: ChangeRemoved})
	}
	return removed
}

// Apply replaces the whole target set of a listener.
func (m *Memory) Apply(listenerName string, targets []target.Target) error {
	names := map[string]bool{}
	for i := range targets {
		if err := targets[i].Validate(); err != nil {
			return err
		}
		if names[targets[i].Name] {
			return fmt.Errorf("duplicate target %q in listener %q", targets[i].Name, listenerName)
		}
		names[targets[i].Name] = true
	}
	var changes []Change
	m.mux.Lock()
	if l, ok := m.listeners[listenerName]; ok {
		for _, name := range append([]string{}, l.order...) {
			if !names[name] && m.remove(listenerName, name) {
				changes = append(changes, Change{Listener: listenerName, Name: name, Type: ChangeRemoved})
			}
		}
	}
	for i := range targets {
		if change, ok := m.upsert(listenerName, targets[i]); ok {
			changes = append(changes, change)
		}
	}
	m.mux.Unlock()
	for _, change := range changes {
		m.publish(change)
	}
	return nil
}

// Subscribe returns a channel receiving changes and a function ending the subscription.
// Changes are dropped for subscribers that do not keep up; every replaced or removed
// target also has its generation cancelled, which subscribers can check to catch up.
func (m *Memory) Subscribe(buffer int) (<-chan Change, func()) {
	m.mux.Lock()
	defer m.mux.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan Change, buffer)
	m.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mux.Lock()
			delete(m.subscribers, id)
			m.mux.Unlock()
			close(ch)
		})
	}
}

// Close cancels every generation.
func (m *Memory) Close() {
	m.mux.Lock()
	defer m.mux.Unlock()
	for _, l := range m.listeners {
		for _, r := range l.records {
			r.cancel()
		}
	}
	m.listeners = map[string]*listener{}
}

func (m *Memory) upsert(listenerName string, aTarget target.Target) (Change, bool) {
	l, ok := m.listeners[listenerName]
	if !ok {
		l = &listener{records: map[string]*record{}}
		m.listeners[listenerName] = l
	}
	aTarget.Filters = aTarget.Filters.Clone()
	change := Change{Listener: listenerName, Name: aTarget.Name, Type: ChangeAdded}
	if previous, ok := l.records[aTarget.Name]; ok {
		if reflect.DeepEqual(previous.entry.Target, aTarget) {
			return change, false
		}
		previous.cancel()
		change.Type = ChangeUpdated
	} else {
		l.order = append(l.order, aTarget.Name)
	}
	generation, cancel := context.WithCancel(context.Background())
	l.records[aTarget.Name] = &record{
		entry:  Entry{Target: aTarget, Generation: generation, ID: uuid.NewString()},
		cancel: cancel,
	}
	return change, true
}

func (m *Memory) remove(listenerName, name string) bool {
	l, ok := m.listeners[listenerName]
	if !ok {
		return false
	}
	r, ok := l.records[name]
	if !ok {
		return false
	}
	r.cancel()
	delete(l.records, name)
	for i, candidate := range l.order {
		if candidate == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

func (m *Memory) publish(change Change) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}
