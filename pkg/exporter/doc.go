// Package exporter drives the export pipeline: list the controller's groups,
// keep those whose namespace is allow-listed, export each one in the
// requested policy mode and write the artifact to <dir>/<group>.yaml.
//
// Groups are processed strictly one at a time in the order the controller
// returns them. A non-200 answer to an export skips that group and the run
// continues; a non-200 answer to the listing yields an empty run. Transport
// errors, malformed listings and write failures end the run.
package exporter
