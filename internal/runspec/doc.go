// Package runspec defines the read-only run context shared by every pipeline
// component.
//
// A Spec is built once from configuration when a run starts. Components read
// every directory and locator from it and never derive paths of their own;
// helper methods cover the few staging locations that hang off the configured
// roots so the layout stays defined in one place.
package runspec
