// Package sql implements dialect.Driver over database/sql and adds the row
// scanning helpers, query statistics and zap debug logging used by the
// object materializer.
//
//	drv, err := sql.Open(dialect.SQLite, "file:shop.db")
//	if err != nil {
//		return err
//	}
//	defer drv.Close()
//
//	rows := &sql.Rows{}
//	if err := drv.Query(ctx, "SELECT id, name FROM customers", []any{}, rows); err != nil {
//		return err
//	}
//	defer rows.Close()
//	records, err := sql.ScanRecords(rows)
package sql
