// Package service hosts the nudge daemon's lifecycle controller.
//
// A Controller boots the communication and scheduler managers, runs the poll
// loop that serves the flag-file request protocol, and tears everything down
// again. Shutdown is reachable from three places: OS signals, a
// shutdown_request.flag sentinel dropped into the base directory, and the
// EmergencyShutdown hook main defers. All of them converge on Shutdown, which
// may run any number of times.
package service
