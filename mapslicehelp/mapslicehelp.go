package mapslicehelp

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/constraints"
)

func LastElement[T any](elements []T) *T {
	length := len(elements)
	if length > 0 {
		return &elements[length-1]
	}
	return nil
}

func AsKeys[T constraints.Ordered](elements []T) map[T]any {
	mapped := make(map[T]any, len(elements))
	for _, element := range elements {
		mapped[element] = struct{}{}
	}
	return mapped
}

// FindFirstKeyWithMaxValue walks oldest to newest, ties go to the earliest key.
func FindFirstKeyWithMaxValue[K comparable, V constraints.Ordered](m *orderedmap.OrderedMap[K, V]) (maxK K, maxV V, numWinners uint) {
	first := true
	for p := m.Oldest(); p != nil; p = p.Next() {
		switch {
		case first || p.Value > maxV:
			maxK, maxV = p.Key, p.Value
			numWinners = 1
			first = false
		case p.Value == maxV:
			numWinners++
		}
	}
	return
}

func OrderedMapKeys[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []K {
	l := make([]K, m.Len())
	i := 0
	for p := m.Oldest(); p != nil; p = p.Next() {
		l[i] = p.Key
		i++
	}
	return l
}

// AddTo adds delta to the value under key, inserting the key when it is new.
func AddTo[K comparable, V constraints.Integer | constraints.Float](m *orderedmap.OrderedMap[K, V], key K, delta V) V {
	v, _ := m.Get(key)
	v += delta
	m.Set(key, v)
	return v
}

func CountVals[K, V comparable](m *orderedmap.OrderedMap[K, V], v V) int {
	n := 0
	for p := m.Oldest(); p != nil; p = p.Next() {
		if p.Value == v {
			n++
		}
	}
	return n
}
