// Package state holds the persisted record of applied resources and the
// backends that store and lock it.
//
// A State is keyed by node address. Each entry keeps the declared
// configuration (with references rendered as placeholders), the resolved
// inputs sent to the provider, and the computed outputs. Backends persist the
// whole document; Lockers serialise runs against it.
package state
