// Package accounts implements the account side of a ride-sharing service:
// signup, email verification, admin approval, and the session tokens that
// gate dashboard access.
//
// Account lifecycle:
//   - Profiles carry an AccountStatus persisted via Bun. Every account walks
//     Awaiting Email Verification -> Awaiting Admin Approval -> a decision
//     (Access Granted or Rejected); Suspended and reinstatement round-trips
//     are admin moves. AccountStateMachine centralizes the transition graph,
//     timestamp handling, hooks, and persistence.
//   - Admin decisions run through the TransitionBroker: a proposal stages a
//     transition without mutating anything, and only a commit of that
//     single-use handle writes, pinned to the profile version observed at
//     propose time.
//
// Out-of-band flows:
//   - ActionCodes are single-use, 24h-limited codes mailed at signup and on
//     password reset. Consuming a verify-email code only flips the verified
//     flag; the lifecycle advance needs a fresh sign-in (ActivateAccount).
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the state
//     machine, and the CSV exporter to describe lifecycle, login, and export
//     events. Sinks run best-effort (errors are logged) so you can forward
//     to a database, a queue, or the bundled Prometheus adapter without
//     blocking authentication.
package accounts
