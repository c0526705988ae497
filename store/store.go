// Package store declares the persistent key-value collaborator (out of
// scope per spec.md §1) and provides an in-memory fake for tests.
//
// Each font uses a distinct database named "incrfonts/<fontName>" (spec.md
// §5) holding two slots, keyed by the fixed key 0: Base and Charlist.
package store

import (
	"context"

	"tachyfont.dev/incrfont"
)

// SchemaVersion is the current persisted-slot schema. On a schema-version
// change, existing slots are dropped and recreated empty (spec.md §6).
const SchemaVersion = 1

// Slot names the two persisted blobs.
type Slot string

const (
	Base     Slot = "base"
	Charlist Slot = "charlist"
)

// Store is the persistent-store collaborator of spec.md §6.
type Store interface {
	// Get returns the bytes in slot for fontName, or a PersistMiss error if
	// the slot has never been written (or was dropped by a schema-version
	// change).
	Get(ctx context.Context, fontName string, slot Slot) ([]byte, error)

	// Put writes slot for fontName.
	Put(ctx context.Context, fontName string, slot Slot, data []byte) error
}

func missErr(slot Slot) error {
	return &incrfont.Error{Kind: incrfont.PersistMiss, SubSystem: "store", Reason: "slot " + string(slot) + " is empty"}
}

// Fake is an in-memory Store for tests.
type Fake struct {
	data map[string]map[Slot][]byte

	// FailNextPut, if >0, causes that many subsequent Put calls to fail
	// with PersistIoError.
	FailNextPut int

	// Puts records every successful Put call, in order, for assertions
	// about persist coalescing.
	Puts []PutRecord
}

// PutRecord is one recorded Fake.Put call.
type PutRecord struct {
	FontName string
	Slot     Slot
}

func NewFake() *Fake {
	return &Fake{data: make(map[string]map[Slot][]byte)}
}

func (f *Fake) Get(ctx context.Context, fontName string, slot Slot) ([]byte, error) {
	db, ok := f.data[fontName]
	if !ok {
		return nil, missErr(slot)
	}
	v, ok := db[slot]
	if !ok {
		return nil, missErr(slot)
	}
	return v, nil
}

func (f *Fake) Put(ctx context.Context, fontName string, slot Slot, data []byte) error {
	if f.FailNextPut > 0 {
		f.FailNextPut--
		return &incrfont.Error{Kind: incrfont.PersistIoError, SubSystem: "store", Reason: "fake induced failure"}
	}
	db, ok := f.data[fontName]
	if !ok {
		db = make(map[Slot][]byte)
		f.data[fontName] = db
	}
	cp := append([]byte(nil), data...)
	db[slot] = cp
	f.Puts = append(f.Puts, PutRecord{FontName: fontName, Slot: slot})
	return nil
}
