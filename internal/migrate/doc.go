// Package migrate moves tenants from the legacy schema to the current one.
//
// A run walks a fixed state machine:
//
//	CLEAR_TARGET → MIGRATE_USERS → { per tenant: GUARD → TENANT → ROLES →
//	ASSIGNMENTS → CATEGORIES → TEMPLATES → EVENTS } → DONE
//
// Users are global and migrated once. Every other stage is scoped to one
// tenant and consumes the id maps produced by the stages before it; maps are
// never shared between tenants. Rows that cannot be mapped are skipped with a
// warning, storage errors abort the whole run, and a tenant whose domain
// already exists in the target is skipped.
//
// # Correlation
//
// Current-side ids are generated before insert with [store.NewID] and come
// back through RETURNING. Id maps are built from that round trip, never from
// the order of the returned rows; an id that does not come back is an error.
//
// # Support codes
//
// [Classify] maps a fatal error to a support code:
//
//	MIG001 - Reset refused: target reset requested in production
//	MIG002 - Invalid icon: an icon reference has an empty name
//	MIG003 - Correlation: inserted ids did not round-trip
//	MIG004 - Cancelled: the run was interrupted
//	MIG005 - Timeout: the run exceeded MIGRATE_TIMEOUT
//	DB001  - Duplicate key
//	DB003  - Foreign key
//	DB004  - Connection refused
//	DB005  - Connection reset
//	DB006  - Statement timeout
//	DB007  - Deadlock
//	ERR000 - Unknown
package migrate
