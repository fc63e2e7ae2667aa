// Package device provides the device store for the console.
//
// A device is a labelled entry with a free-form type and an access
// secret. The secret is write-only: it is stored as an Argon2id digest and
// never returned. Callers outside the store work with View, which only
// reports whether a secret is set.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐
//	│    Validation    │    │    Repository    │
//	│ (validation.go)  │    │  (repository.go) │
//	│                  │    │                  │
//	│ • Name/type rules│    │ • SQLite queries │
//	│ • Input trimming │    │ • WithTx writes  │
//	└──────────────────┘    └──────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	d := &device.Device{Name: "sensor1", Type: "temp", SecretHash: digest}
//	if err := repo.Create(ctx, d); err != nil {
//	    return err
//	}
package device
