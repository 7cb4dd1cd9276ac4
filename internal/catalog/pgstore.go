package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/domain"
)

// PGStore loads catalog snapshots from the entity registry tables.
type PGStore struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewPGStore(pool *db.Pool, logger zerolog.Logger) *PGStore {
	return &PGStore{pool: pool, logger: logger}
}

// LoadCatalog reads persons, institutions and aliases and builds a fresh
// catalog. Empty tables produce an empty catalog and a warning.
func (s *PGStore) LoadCatalog(ctx context.Context) (*Catalog, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("catalog store is not initialized")
	}

	entities, err := s.loadEntities(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := s.loadAliases(ctx)
	if err != nil {
		return nil, err
	}

	built, err := Build(entities, aliases)
	if err != nil {
		return nil, err
	}
	if built.Empty() {
		s.logger.Warn().Msg("no aliases loaded; mentions will not be extracted")
	} else {
		s.logger.Info().
			Int("entities", len(entities)).
			Int("alias_rows", len(aliases)).
			Int("aliases", built.AliasCount()).
			Int("patterns", built.Matcher().Patterns()).
			Msg("alias catalog built")
	}
	return built, nil
}

func (s *PGStore) loadEntities(ctx context.Context) ([]Entity, error) {
	const q = `
SELECT 'person' AS entity_type, p.person_id, p.full_name, COALESCE(p.role, ''), NULL::bigint
FROM atlas.persons p
WHERE p.active
UNION ALL
SELECT 'institution', i.institution_id, i.name, '', i.parent_id
FROM atlas.institutions i
WHERE i.active
`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select catalog entities: %w", err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var (
			rawType string
			entity  Entity
		)
		if err := rows.Scan(&rawType, &entity.ID, &entity.DisplayName, &entity.Role, &entity.ParentID); err != nil {
			return nil, fmt.Errorf("scan catalog entity: %w", err)
		}
		entityType, err := domain.ParseEntityType(rawType)
		if err != nil {
			return nil, err
		}
		entity.Type = entityType
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog entities: %w", err)
	}
	return entities, nil
}

func (s *PGStore) loadAliases(ctx context.Context) ([]AliasRow, error) {
	const q = `
SELECT entity_type, entity_id, alias, match_quality
FROM atlas.entity_aliases
ORDER BY alias_id
`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select entity aliases: %w", err)
	}
	defer rows.Close()

	var aliases []AliasRow
	for rows.Next() {
		var (
			rawType string
			row     AliasRow
		)
		if err := rows.Scan(&rawType, &row.EntityID, &row.RawText, &row.MatchQuality); err != nil {
			return nil, fmt.Errorf("scan entity alias: %w", err)
		}
		entityType, err := domain.ParseEntityType(rawType)
		if err != nil {
			s.logger.Warn().Err(err).Int64("entity_id", row.EntityID).Msg("skipping alias with unknown entity type")
			continue
		}
		row.EntityType = entityType
		aliases = append(aliases, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity aliases: %w", err)
	}
	return aliases, nil
}

// SyncNormalizedAliases rewrites normalized_alias for rows whose stored value
// drifted from the current normalizer.
func (s *PGStore) SyncNormalizedAliases(ctx context.Context, normalize func(string) string) (int, error) {
	const selectQ = `SELECT alias_id, alias, normalized_alias FROM atlas.entity_aliases`
	const updateQ = `UPDATE atlas.entity_aliases SET normalized_alias = $2 WHERE alias_id = $1`

	rows, err := s.pool.Query(ctx, selectQ)
	if err != nil {
		return 0, fmt.Errorf("select aliases for normalization: %w", err)
	}
	type drift struct {
		id         int64
		normalized string
	}
	var drifted []drift
	for rows.Next() {
		var (
			id         int64
			raw        string
			normalized string
		)
		if err := rows.Scan(&id, &raw, &normalized); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan alias for normalization: %w", err)
		}
		if want := normalize(raw); want != normalized {
			drifted = append(drifted, drift{id: id, normalized: want})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate aliases for normalization: %w", err)
	}
	rows.Close()

	for _, d := range drifted {
		if _, err := s.pool.Exec(ctx, updateQ, d.id, d.normalized); err != nil {
			return 0, fmt.Errorf("update normalized alias alias_id=%d: %w", d.id, err)
		}
	}
	return len(drifted), nil
}
