package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/eventmigrate/internal/icons"
	"github.com/jackc/pgx/v5/pgconn"
)

// SupportMessage describes a fatal run error for the operator.
type SupportMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Code for support reference
}

// sentinelCodes are checked first, with errors.Is.
var sentinelCodes = []struct {
	err error
	msg SupportMessage
}{
	{ErrResetRefused, SupportMessage{
		Message: "Target reset refused in production",
		Action:  "Set MIGRATE_RESET_TARGET=false or point DATABASE_URL at a non-production target",
		Code:    "MIG001",
	}},
	{icons.ErrInvalidIconRef, SupportMessage{
		Message: "An icon reference has an empty name",
		Action:  "Fix the icon column of the legacy row named in the error",
		Code:    "MIG002",
	}},
	{ErrCorrelation, SupportMessage{
		Message: "Inserted rows did not report the ids they were given",
		Action:  "Check triggers or defaults overriding id columns in the target",
		Code:    "MIG003",
	}},
	{context.Canceled, SupportMessage{
		Message: "Migration was interrupted",
		Action:  "Reset the target and start a new run",
		Code:    "MIG004",
	}},
	{context.DeadlineExceeded, SupportMessage{
		Message: "Migration exceeded its time limit",
		Action:  "Raise MIGRATE_TIMEOUT or lower MIGRATE_BATCH_SIZE",
		Code:    "MIG005",
	}},
}

// sqlStateCodes maps PostgreSQL SQLSTATE values, checked with errors.As.
var sqlStateCodes = map[string]SupportMessage{
	"23505": {Message: "A record with this key already exists", Action: "Reset the target before migrating again", Code: "DB001"},
	"23503": {Message: "Referenced record does not exist", Action: "Check that earlier stages completed for this tenant", Code: "DB003"},
	"57014": {Message: "Statement timed out", Action: "Lower MIGRATE_BATCH_SIZE and try again", Code: "DB006"},
	"40P01": {Message: "Database was busy with conflicting operations", Action: "Make sure nothing else writes to the target and try again", Code: "DB007"},
}

// errorPatterns are matched case-insensitively against the message when
// nothing structured matched. The first match wins.
var errorPatterns = []struct {
	pattern string
	msg     SupportMessage
}{
	{"duplicate key", SupportMessage{Message: "A record with this key already exists", Action: "Reset the target before migrating again", Code: "DB001"}},
	{"violates foreign key", SupportMessage{Message: "Referenced record does not exist", Action: "Check that earlier stages completed for this tenant", Code: "DB003"}},
	{"connection refused", SupportMessage{Message: "Unable to connect to database", Action: "Check LEGACY_DATABASE_URL and DATABASE_URL", Code: "DB004"}},
	{"connection reset", SupportMessage{Message: "Database connection was interrupted", Action: "Reset the target and try again", Code: "DB005"}},
	{"timeout", SupportMessage{Message: "Operation timed out", Action: "Lower MIGRATE_BATCH_SIZE and try again", Code: "DB006"}},
	{"deadlock", SupportMessage{Message: "Database was busy with conflicting operations", Action: "Make sure nothing else writes to the target and try again", Code: "DB007"}},
}

var defaultSupportMessage = SupportMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log for the original error",
	Code:    "ERR000",
}

// Classify maps err to a support message. It returns the zero value for a
// nil error and the ERR000 fallback when nothing matches.
func Classify(err error) SupportMessage {
	if err == nil {
		return SupportMessage{}
	}

	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := sqlStateCodes[pgErr.Code]; ok {
			return msg
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return SupportMessage{Message: "Database connection failed", Action: "Check the database and try again", Code: "DB004"}
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}
	return defaultSupportMessage
}

// FormatSupport renders err as "Message (Code: XXX). Action".
func FormatSupport(err error) string {
	msg := Classify(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
