// Package preflight checks that a deployment can run the parse pipeline:
// free disk and write access under the storage root, the file descriptor
// limit, and reachability of the metadata store and index backends.
//
//	checker := preflight.New(preflight.Config{StorageRoot: root, Probes: probes})
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
