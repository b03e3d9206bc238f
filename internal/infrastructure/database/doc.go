// Package database opens the SQLite file behind the transition history
// and applies its embedded migrations.
//
// History is a queryable mirror, never a recovery source. The rig always
// boots with every device IDLE and the CSV ledgers stay authoritative.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx)
package database
