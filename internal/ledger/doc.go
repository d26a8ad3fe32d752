// Package ledger records webhook delivery outcomes for auditing.
//
// Every normalized message produces one row: delivered or failed, with the
// payload fields and the delivery error when there was one. The SQLite
// implementation uses WAL mode and creates its schema on open.
package ledger
