// Package repository implements the entitlement store: holders, slots and
// ping events.  SQLStore persists them in MySQL; MemoryStore keeps them in
// process for tests and single-node runs.  Both return the sentinel errors
// below so the lifecycle engine can map failures without knowing which
// backend is in use.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a holder or slot does not exist.
var ErrNotFound = errors.New("not found")

// ErrActiveSlotExists is returned by CreateSlot when the holder already
// has an active slot.  The check and the insert are atomic, so two racing
// creates for the same holder cannot both succeed.
var ErrActiveSlotExists = errors.New("holder already has an active slot")

// ErrUnavailable wraps driver and connection failures.  Callers should
// abort the operation and let the trigger retry.
var ErrUnavailable = errors.New("store unavailable")

// mysqlDuplicateEntry is the MySQL error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// wrap translates a database error into the package's sentinels.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrActiveSlotExists) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// isDuplicate reports whether err is a unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
