// Package fixtures provides test data factories for repository tests.
//
// Each factory method inserts a record with sensible defaults, allowing
// customization via option functions, and returns the model it wrote.
//
// Usage:
//
//	tdb := testdb.New(t)
//	f := fixtures.New(tdb.DB)
//
//	admin := f.CreateAdmin(t)
//	player := f.CreateAccount(t, fixtures.WithCurrentLayer("layer:main"))
//	tiny := f.CreateLayer(t, fixtures.WithMaxPlayers(1))
//	closed := f.CreateLayer(t, fixtures.Inactive())
//
// Record keys are random, so fixtures never collide within a namespace.
// Test data goes away with the namespace when the test database closes.
package fixtures
