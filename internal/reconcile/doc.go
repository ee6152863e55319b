// Package reconcile contains the topology arbiter: the classifiers that
// turn one geodatabase edit into an ordered list of notifications, and the
// split handler that synthesizes replacement segments when a node lands on
// an existing one.
//
// The classifiers are deliberately side-effect-light. They read the spatial
// and shadow stores and write only the shadow table; every live-network
// mutation they decide on is expressed as a notification and applied by the
// dispatcher, so the full consequence of one edit is auditable as a single
// ordered list.
package reconcile
