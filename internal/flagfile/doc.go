// Package flagfile implements the on-disk half of the flag-file request
// protocol: naming, discovery, atomic producer writes, payload parsing,
// response files, and the shutdown sentinel.
//
// A producer drops `<kind>_request_<key>.flag` into the shared base
// directory. The daemon consumes it by deleting it. Responses for kinds that
// have one are written as `<kind>_response_<key>.flag` and left for the
// producer to collect. The single `shutdown_request.flag` sentinel asks the
// daemon to stop.
//
// Every helper treats a file vanishing between discovery and use as a benign
// race, because the base directory is shared with uncoordinated producers.
package flagfile
