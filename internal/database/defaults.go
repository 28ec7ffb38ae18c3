package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

// SeedDefaults ensures baseline settings exist for new databases.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB, defaultCurrency string) error {
	settings := repository.NewSettingRepo(db)
	cur := strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if cur == "" {
		cur = "EUR"
	}
	return settings.SetDefault(ctx, repository.SettingDefaultCurrency, cur)
}
