// Package preflight provides readiness checks for the filesystem paths and
// external services nudge depends on.
//
// These checks run in two contexts:
//   - The daemon calls RequiredPaths and VerifyAccess at boot. Any failure is
//     fatal because the flag protocol and user store cannot work without them.
//   - The CLI "nudge status" command uses RunAll to display readiness.
package preflight
