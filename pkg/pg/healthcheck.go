package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChangefeedFunction is installed by the embedded migrations; without it
// no table ever emits a notification.
const ChangefeedFunction = "newsdesk_changefeed_notify"

// Healthcheck returns a readiness probe that pings the pool and checks that
// the change feed trigger function exists.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		var installed bool
		err := pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = $1)", ChangefeedFunction).Scan(&installed)
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		if !installed {
			return ErrChangefeedNotInstalled
		}
		return nil
	}
}
