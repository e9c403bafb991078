// Package preflight provides readiness checks for the filesystem paths,
// database and external analysis service that memalerts depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failing check. A
//     failing check never aborts startup; the watchdog and retry schedule
//     absorb transient outages.
//   - The CLI "memalerts health" command renders the same results alongside
//     database diagnostics.
package preflight
