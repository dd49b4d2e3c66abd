// Package keyset define el tipo de conjunto de thumbprints y la comparación
// recorded − current que detecta rotación de claves.
//
// Los thumbprints son identificadores derivados del contenido de la clave
// (RFC 7638); dos claves con el mismo thumbprint son la misma clave. Nunca se
// compara material de clave crudo.
package keyset

import (
	"errors"
	"sort"
)

var (
	// ErrEmptySet se retorna cuando alguno de los conjuntos a comparar está
	// vacío. Un conjunto vacío es input malformado, no "cero claves rotadas":
	// devolver {} acá confundiría "no hay claves" con "no hubo rotación".
	ErrEmptySet = errors.New("keyset: empty_key_set")
)

// IsEmptySet reporta si err es o envuelve ErrEmptySet.
func IsEmptySet(err error) bool {
	return errors.Is(err, ErrEmptySet)
}

// Thumbprint es el identificador determinístico de una clave,
// base64url sin padding. Igualdad = igualdad exacta de strings.
type Thumbprint string

// Set es un conjunto de thumbprints.
type Set map[Thumbprint]struct{}

// New construye un Set a partir de thumbprints sueltos.
func New(tps ...Thumbprint) Set {
	s := make(Set, len(tps))
	for _, tp := range tps {
		s[tp] = struct{}{}
	}
	return s
}

// Add agrega un thumbprint al conjunto.
func (s Set) Add(tp Thumbprint) {
	s[tp] = struct{}{}
}

// Contains reporta si tp pertenece al conjunto.
func (s Set) Contains(tp Thumbprint) bool {
	_, ok := s[tp]
	return ok
}

// Len retorna la cantidad de thumbprints.
func (s Set) Len() int {
	return len(s)
}

// Union agrega todos los elementos de other a s y retorna s.
func (s Set) Union(other Set) Set {
	for tp := range other {
		s[tp] = struct{}{}
	}
	return s
}

// Sorted retorna los thumbprints ordenados, para display estable.
func (s Set) Sorted() []Thumbprint {
	out := make([]Thumbprint, 0, len(s))
	for tp := range s {
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Compare computa recorded − current: los thumbprints registrados en el
// binding que ya no aparecen en el advertisement actual (claves rotadas).
//
// Ambos conjuntos deben ser no-vacíos; si alguno está vacío falla con
// ErrEmptySet. Pura y determinística, sin efectos.
func Compare(current, recorded Set) (Set, error) {
	if len(current) == 0 || len(recorded) == 0 {
		return nil, ErrEmptySet
	}
	stale := make(Set)
	for tp := range recorded {
		if !current.Contains(tp) {
			stale[tp] = struct{}{}
		}
	}
	return stale, nil
}
