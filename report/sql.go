package report

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// WriteSQLRow inserts one row summarizing this run into a "configs"
// table in a local SQLite database, the optional SQL output spec.md §6
// names; dbPath is created if it doesn't already exist.
func WriteSQLRow(dbPath string, s *Stats, er EnergyReport) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("report: open %s: %w", dbPath, err)
	}
	defer db.Close()

	const schema = `
CREATE TABLE IF NOT EXISTS configs (
	benchmark        TEXT,
	cycles           INTEGER,
	loads            INTEGER,
	stores           INTEGER,
	dma_bytes        INTEGER,
	dynamic_energy_pj REAL,
	leakage_pj       REAL,
	area_um2         REAL
)`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("report: create configs table: %w", err)
	}

	const insert = `
INSERT INTO configs (benchmark, cycles, loads, stores, dma_bytes, dynamic_energy_pj, leakage_pj, area_um2)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.Exec(insert, s.Benchmark, s.TotalCycles, s.Loads, s.Stores, s.DMABytes,
		er.DynamicEnergyPJ, er.LeakagePJ, er.AreaUM2)
	if err != nil {
		return fmt.Errorf("report: insert configs row: %w", err)
	}
	return nil
}
