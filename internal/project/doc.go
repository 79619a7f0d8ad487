// Package project assembles a compiled build model into the runtime objects
// the engine resolves: configurations with their roles and hierarchies, the
// attribute schema, published components, and one engine edge per declared
// dependency.
//
// Load enforces role usage. The consumer configuration must be resolvable
// and every dependency must be declared in a configuration that allows
// declaration against it. Deprecated usage is logged as a warning.
package project
