// Package store owns the reminder collections: pending, sent and
// dead-letter. All mutating operations and the due() read serialize on one
// mutex, so a reminder can never be reported due and concurrently edited or
// deleted. The in-memory state is the source of truth for the running
// process; persistence is a best-effort durability mirror written in full
// after every mutation batch (file snapshot or SQLite, by config).
package store
