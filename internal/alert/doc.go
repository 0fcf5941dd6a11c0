// Package alert defines the alert model, its status lifecycle and the Store
// interface the triage service persists alerts through. Backends live in the
// filestore, pgstore and memstore subpackages.
package alert
