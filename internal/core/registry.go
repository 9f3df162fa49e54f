package core

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]KindDefinition)
	registryMu sync.RWMutex
)

// Register adds an import kind to the registry.
// Panics if a kind with the same key is already registered or a field is
// listed twice.
func Register(def KindDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("import kind already registered: %s", def.Info.Key))
	}

	def.Fields = slices.Clone(def.Fields)
	seen := make(map[Field]bool, len(def.Fields))
	for i, spec := range def.Fields {
		if seen[spec.Field] {
			panic(fmt.Sprintf("import kind %s: field %s listed twice", def.Info.Key, spec.Field))
		}
		seen[spec.Field] = true
		// The field name always maps itself.
		def.Fields[i].Synonyms = append([]string{string(spec.Field)}, spec.Synonyms...)
	}

	registry[def.Info.Key] = def
}

// Get returns an import kind by key.
// Returns false if not found.
func Get(key string) (KindDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered import kinds sorted by key.
func All() []KindDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]KindDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}
