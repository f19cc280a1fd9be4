package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// activateBootstrapState records the applied schema version and
// checksum. Readiness probes can compare against it after deploys.
func activateBootstrapState(ctx context.Context, db *sql.DB, schemaVersion, checksum string) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO system_bootstrap_state (id, status, schema_version, checksum, activated_at, created_at)
		VALUES (TRUE, 'active', $1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    schema_version = EXCLUDED.schema_version,
		    checksum = EXCLUDED.checksum,
		    activated_at = EXCLUDED.activated_at
	`, strings.TrimSpace(schemaVersion), nullIfEmpty(checksum), now)
	if err != nil {
		return fmt.Errorf("activate bootstrap state: %w", err)
	}
	return nil
}

func nullIfEmpty(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
