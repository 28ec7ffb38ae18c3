package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jask/ledgerkeep/internal/database"
	"github.com/jask/ledgerkeep/internal/database/repository"
)

// MaintenanceService houses destructive/ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB              *sql.DB
	DefaultCurrency string
	Log             zerolog.Logger
}

// Reset wipes all user data. It keeps the schema intact and re-seeds default settings so the
// app can continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := repository.NewStore(s.DB).Tx(ctx, func(st *repository.Store) error {
		return st.WipeUserData(ctx)
	}); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	if err := database.SeedDefaults(ctx, s.DB, s.DefaultCurrency); err != nil {
		return fmt.Errorf("reseed defaults: %w", err)
	}
	s.Log.Warn().Msg("all user data wiped")
	return nil
}
