// Package core holds the shared contracts of the mods runtime: configuration,
// credentials, the error taxonomy and operation observability. It must not
// depend on transport, storage or provider packages.
package core
