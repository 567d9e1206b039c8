package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pbt-labs/pbt-ocr/internal/entity"
)

// SettingsRepository reads and writes the single global settings row.
type SettingsRepository interface {
	// Get returns the current settings, seeding the defaults row on first
	// access.
	Get(ctx context.Context) (entity.Settings, error)
	Update(ctx context.Context, s entity.Settings) error
}

type settingsRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewSettingsRepository(pool *pgxpool.Pool, log *slog.Logger) SettingsRepository {
	if log == nil {
		log = slog.Default()
	}
	return &settingsRepo{pool: pool, log: log}
}

func (r *settingsRepo) Get(ctx context.Context) (entity.Settings, error) {
	var s entity.Settings
	var timeoutSecs int
	err := r.pool.QueryRow(ctx, `
		SELECT precision_threshold, vlm_base_url, vlm_model, vlm_max_tokens,
			vlm_timeout_secs, ocr_language, ocr_default_dpi
		FROM settings WHERE id = 1`).
		Scan(&s.PrecisionThreshold, &s.VLMBaseURL, &s.VLMModel, &s.VLMMaxTokens,
			&timeoutSecs, &s.OCRLanguage, &s.OCRDefaultDPI)
	if errors.Is(err, pgx.ErrNoRows) {
		defaults := entity.DefaultSettings()
		if err := r.seed(ctx, defaults); err != nil {
			return entity.Settings{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return entity.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	s.VLMTimeout = time.Duration(timeoutSecs) * time.Second
	return s, nil
}

func (r *settingsRepo) Update(ctx context.Context, s entity.Settings) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE settings
		SET precision_threshold = $1, vlm_base_url = $2, vlm_model = $3,
			vlm_max_tokens = $4, vlm_timeout_secs = $5, ocr_language = $6,
			ocr_default_dpi = $7
		WHERE id = 1`,
		s.PrecisionThreshold, s.VLMBaseURL, s.VLMModel,
		s.VLMMaxTokens, int(s.VLMTimeout/time.Second), s.OCRLanguage,
		s.OCRDefaultDPI)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	r.log.Info("settings.updated", "precision_threshold", s.PrecisionThreshold, "vlm_model", s.VLMModel)
	return nil
}

func (r *settingsRepo) seed(ctx context.Context, s entity.Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (id, precision_threshold, vlm_base_url, vlm_model,
			vlm_max_tokens, vlm_timeout_secs, ocr_language, ocr_default_dpi)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		s.PrecisionThreshold, s.VLMBaseURL, s.VLMModel,
		s.VLMMaxTokens, int(s.VLMTimeout/time.Second), s.OCRLanguage,
		s.OCRDefaultDPI)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	r.log.Info("settings.seeded")
	return nil
}
