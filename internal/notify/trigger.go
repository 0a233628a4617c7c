package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ManagedTables lists the tables the Bridge provisions triggers for. Adding a table here is the only step required
// to make its row changes available to the Subscription Router.
var ManagedTables = []string{"users", "buckets", "files", "cors_origins"}

// EnsureTriggers provisions a notification trigger for every table in tables, idempotently (DROP IF EXISTS then
// CREATE). A single table's provisioning failure is logged and does not abort the others, per §4.4's failure
// semantics.
func EnsureTriggers(ctx context.Context, pool *pgxpool.Pool, tables []string, logger zerolog.Logger) error {
	var firstErr error
	for _, table := range tables {
		if err := ensureTableTrigger(ctx, pool, table); err != nil {
			logger.Warn().Err(err).Str("table", table).Msg("failed to provision change-notification trigger")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Debug().Str("table", table).Msg("change-notification trigger provisioned")
	}
	return firstErr
}

// ensureTableTrigger creates (or replaces) the trigger function and trigger for a single table. The function body
// embeds the channel name literally, since plpgsql's pg_notify channel argument cannot be parameterized by a prepared
// statement placeholder in a function body constructed this way.
func ensureTableTrigger(ctx context.Context, pool *pgxpool.Pool, table string) error {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
		table,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("table %q does not exist", table)
	}

	functionName := "notify_" + table + "_changes"
	channel := ChannelFor(table)

	createFunction := fmt.Sprintf(`
CREATE OR REPLACE FUNCTION %s() RETURNS TRIGGER AS $$
DECLARE
	payload JSON;
BEGIN
	IF (TG_OP = 'DELETE') THEN
		payload = json_build_object('operation', TG_OP, 'table', TG_TABLE_NAME, 'old_data', row_to_json(OLD));
	ELSE
		payload = json_build_object(
			'operation', TG_OP, 'table', TG_TABLE_NAME,
			'data', row_to_json(NEW),
			'old_data', CASE WHEN TG_OP = 'UPDATE' THEN row_to_json(OLD) ELSE NULL END
		);
	END IF;
	PERFORM pg_notify(%s, payload::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;`, functionName, quoteLiteral(channel))

	if _, err := pool.Exec(ctx, createFunction); err != nil {
		return fmt.Errorf("create trigger function: %w", err)
	}

	triggerName := table + "_notify_trigger"
	dropTrigger := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s;`, triggerName, quoteIdent(table))
	if _, err := pool.Exec(ctx, dropTrigger); err != nil {
		return fmt.Errorf("drop existing trigger: %w", err)
	}

	createTrigger := fmt.Sprintf(
		`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s();`,
		triggerName, quoteIdent(table), functionName,
	)
	if _, err := pool.Exec(ctx, createTrigger); err != nil {
		return fmt.Errorf("create trigger: %w", err)
	}

	return nil
}

// quoteIdent wraps a Postgres identifier in double quotes. Table names here always come from the hardcoded
// ManagedTables list, never from request input.
func quoteIdent(ident string) string {
	return `"` + ident + `"`
}

// quoteLiteral wraps a string as a single-quoted SQL literal for embedding into a generated function body.
func quoteLiteral(s string) string {
	return "'" + s + "'"
}
