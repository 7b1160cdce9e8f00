// Package userdata persists users, their message categories, and their tasks
// in a SQLite database under the configured data directory.
//
// The store mirrors the daemon's needs: the communication manager resolves a
// user's channel and recipient, the scheduler enumerates users and
// categories, and task reminders read and complete tasks. Every user also
// owns a data directory that the daemon verifies at boot.
package userdata
