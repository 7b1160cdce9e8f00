// Package comm delivers messages to users over the configured channels.
//
// A Channel is one delivery transport (console, ntfy, webhook). The Manager
// owns the enabled channels, resolves each user's channel and recipient from
// the user store, renders content from the message library, and exposes the
// operations the request router and the scheduler call.
package comm
