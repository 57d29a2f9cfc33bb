// Package watch provides the change-detection primitives the engine composes
// into its per-tick world snapshot. Every watcher follows the same contract:
// Update reads the underlying value, IsChanged compares it against the baseline
// captured at the last Reset, and Reset promotes the current value to baseline.
package watch

// Watcher is the common update/reset surface shared by all watcher kinds.
type Watcher interface {
	Update()
	Reset()
	IsChanged() bool
}

// List groups watchers so composites can advance them in one call.
type List []Watcher

func (l List) UpdateAll() {
	for _, w := range l {
		w.Update()
	}
}

func (l List) ResetAll() {
	for _, w := range l {
		w.Reset()
	}
}

// Value watches a single comparable value. Old is the baseline at the last
// Reset; New is the value read by the last Update. Both are always readable
// when changed, even when New is the zero value.
type Value[T comparable] struct {
	get      func() T
	baseline T
	current  T
}

func NewValue[T comparable](get func() T) *Value[T] {
	v := get()
	return &Value[T]{get: get, baseline: v, current: v}
}

func (w *Value[T]) Update()         { w.current = w.get() }
func (w *Value[T]) Reset()          { w.baseline = w.current }
func (w *Value[T]) IsChanged() bool { return w.current != w.baseline }
func (w *Value[T]) Old() T          { return w.baseline }
func (w *Value[T]) New() T          { return w.current }

// KeySet watches membership of a keyed collection. Added and Removed report
// identity-level deltas for the current tick only; unchanged members are never
// reported and there is no historical accumulation across resets.
type KeySet[K comparable] struct {
	get      func() []K
	baseline map[K]struct{}
	current  map[K]struct{}
	added    []K
	removed  []K
}

func NewKeySet[K comparable](get func() []K) *KeySet[K] {
	w := &KeySet[K]{get: get, baseline: map[K]struct{}{}, current: map[K]struct{}{}}
	for _, k := range get() {
		w.baseline[k] = struct{}{}
	}
	return w
}

func (w *KeySet[K]) Update() {
	clear(w.current)
	for _, k := range w.get() {
		w.current[k] = struct{}{}
	}
	w.added = w.added[:0]
	w.removed = w.removed[:0]
	for k := range w.current {
		if _, ok := w.baseline[k]; !ok {
			w.added = append(w.added, k)
		}
	}
	for k := range w.baseline {
		if _, ok := w.current[k]; !ok {
			w.removed = append(w.removed, k)
		}
	}
}

func (w *KeySet[K]) Reset() {
	clear(w.baseline)
	for k := range w.current {
		w.baseline[k] = struct{}{}
	}
	w.added = w.added[:0]
	w.removed = w.removed[:0]
}

func (w *KeySet[K]) IsChanged() bool { return len(w.added) > 0 || len(w.removed) > 0 }
func (w *KeySet[K]) Added() []K      { return w.added }
func (w *KeySet[K]) Removed() []K    { return w.removed }

// Pair is one key's before/after values from a Dict watcher.
type Pair[K comparable, V comparable] struct {
	Key K
	Old V
	New V
}

// Dict watches a key/value map, reporting keys added, keys removed, and keys
// whose value changed since the last Reset.
type Dict[K comparable, V comparable] struct {
	get      func() map[K]V
	baseline map[K]V
	current  map[K]V
	added    []K
	removed  []K
	updated  []Pair[K, V]
}

func NewDict[K comparable, V comparable](get func() map[K]V) *Dict[K, V] {
	w := &Dict[K, V]{get: get, baseline: map[K]V{}, current: map[K]V{}}
	for k, v := range get() {
		w.baseline[k] = v
	}
	return w
}

func (w *Dict[K, V]) Update() {
	clear(w.current)
	for k, v := range w.get() {
		w.current[k] = v
	}
	w.added = w.added[:0]
	w.removed = w.removed[:0]
	w.updated = w.updated[:0]
	for k, v := range w.current {
		old, ok := w.baseline[k]
		switch {
		case !ok:
			w.added = append(w.added, k)
		case old != v:
			w.updated = append(w.updated, Pair[K, V]{Key: k, Old: old, New: v})
		}
	}
	for k := range w.baseline {
		if _, ok := w.current[k]; !ok {
			w.removed = append(w.removed, k)
		}
	}
}

func (w *Dict[K, V]) Reset() {
	clear(w.baseline)
	for k, v := range w.current {
		w.baseline[k] = v
	}
	w.added = w.added[:0]
	w.removed = w.removed[:0]
	w.updated = w.updated[:0]
}

func (w *Dict[K, V]) IsChanged() bool {
	return len(w.added) > 0 || len(w.removed) > 0 || len(w.updated) > 0
}

// Current returns the value read by the last Update.
func (w *Dict[K, V]) Current(k K) (V, bool) {
	v, ok := w.current[k]
	return v, ok
}

func (w *Dict[K, V]) Added() []K           { return w.added }
func (w *Dict[K, V]) Removed() []K         { return w.removed }
func (w *Dict[K, V]) Updated() []Pair[K, V] { return w.updated }
