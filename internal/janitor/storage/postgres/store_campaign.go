package postgres

import (
	"context"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// CampaignStore implementation

func (s *Store) UpsertCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error) {
	now := time.Now().UTC()
	existing, err := s.GetCampaign(ctx, c.Name)
	if err == nil {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO janitor_campaigns (name, command_template, build_target_class, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET command_template = $2, build_target_class = $3, updated_at = $5
	`, c.Name, c.CommandTemplate, string(c.BuildTargetClass), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

func (s *Store) GetCampaign(ctx context.Context, name string) (domain.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, command_template, build_target_class, created_at, updated_at
		FROM janitor_campaigns
		WHERE name = $1
	`, name)

	var (
		c     domain.Campaign
		class string
	)
	if err := row.Scan(&c.Name, &c.CommandTemplate, &class, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Campaign{}, err
	}
	c.BuildTargetClass = domain.BuildTargetClass(class)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, command_template, build_target_class, created_at, updated_at
		FROM janitor_campaigns
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Campaign
	for rows.Next() {
		var (
			c     domain.Campaign
			class string
		)
		if err := rows.Scan(&c.Name, &c.CommandTemplate, &class, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.BuildTargetClass = domain.BuildTargetClass(class)
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		result = append(result, c)
	}
	return result, rows.Err()
}
