package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
	_ "modernc.org/sqlite"
)

const timeFormat = "2006-01-02 15:04:05"

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and runs migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename to ensure order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

// --- Cases ---

func (s *SQLiteStore) CreateCase(ctx context.Context, c *model.Case) error {
	c.Title = strings.TrimSpace(c.Title)
	if err := model.ValidateCase(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CaseActive
	}
	now := time.Now().UTC().Truncate(time.Second)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	c.Version = 1

	tagsJSON, err := json.Marshal(emptyIfNil(c.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cases (id, title, description, status, tags, notes, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, string(c.Status), string(tagsJSON),
		c.Notes, c.Version, c.CreatedAt.Format(timeFormat), c.UpdatedAt.Format(timeFormat))
	return err
}

func (s *SQLiteStore) GetCase(ctx context.Context, id string) (*model.Case, error) {
	c, err := scanCase(s.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, tags, notes, version, created_at, updated_at
		 FROM cases WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("case %s not found", id)
	}
	return c, err
}

func (s *SQLiteStore) ListCases(ctx context.Context, f model.CaseFilter) ([]*model.Case, error) {
	query := `SELECT id, title, description, status, tags, notes, version, created_at, updated_at FROM cases`
	var conds []string
	var args []interface{}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Query != "" {
		conds = append(conds, "(lower(title) LIKE ? OR lower(description) LIKE ?)")
		pat := "%" + strings.ToLower(f.Query) + "%"
		args = append(args, pat, pat)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*model.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (s *SQLiteStore) UpdateCase(ctx context.Context, id string, upd model.CaseUpdate) (*model.Case, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := scanCase(tx.QueryRowContext(ctx,
		`SELECT id, title, description, status, tags, notes, version, created_at, updated_at
		 FROM cases WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("case %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if upd.Version != nil && *upd.Version != c.Version {
		return nil, apperr.Conflictf("case %s was modified concurrently (have version %d, got %d)", id, c.Version, *upd.Version)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	if upd.Status != nil && *upd.Status != c.Status {
		if !upd.Status.Valid() {
			return nil, apperr.Validationf("unknown case status %q", *upd.Status)
		}
		if err := appendActivity(ctx, tx, c.ID, model.ActivityStatusChanged, c.ID,
			fmt.Sprintf("%s -> %s", c.Status, *upd.Status), now); err != nil {
			return nil, err
		}
		c.Status = *upd.Status
	}
	if upd.Tags != nil {
		c.Tags = *upd.Tags
	}
	if upd.Notes != nil && *upd.Notes != c.Notes {
		if err := appendActivity(ctx, tx, c.ID, model.ActivityNotesUpdated, c.ID, "", now); err != nil {
			return nil, err
		}
		c.Notes = *upd.Notes
	}
	if err := model.ValidateCase(c); err != nil {
		return nil, err
	}
	c.Version++
	c.UpdatedAt = now

	tagsJSON, err := json.Marshal(emptyIfNil(c.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE cases SET title = ?, description = ?, status = ?, tags = ?, notes = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		c.Title, c.Description, string(c.Status), string(tagsJSON), c.Notes,
		c.Version, c.UpdatedAt.Format(timeFormat), c.ID); err != nil {
		return nil, err
	}
	return c, tx.Commit()
}

// DeleteCase removes a case and, via foreign keys, its entities,
// relationships, and activity log. Deleting an absent case fails with
// NotFound so repeated deletes are safe.
func (s *SQLiteStore) DeleteCase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFoundf("case %s not found", id)
	}
	return nil
}

func scanCase(row scannable) (*model.Case, error) {
	var c model.Case
	var status, tagsJSON, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Title, &c.Description, &status, &tagsJSON,
		&c.Notes, &c.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.CaseStatus(status)
	_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
	c.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	c.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &c, nil
}

// --- Entities ---

func (s *SQLiteStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	if e.CaseID == "" {
		return apperr.Validationf("caseId is required")
	}
	if e.RiskLevel == "" {
		e.RiskLevel = model.RiskUnknown
	}
	if err := model.ValidateEntity(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM cases WHERE id = ?`, e.CaseID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return apperr.NotFoundf("case %s not found", e.CaseID)
	}

	tagsJSON, err := json.Marshal(emptyIfNil(e.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	dataJSON, err := json.Marshal(emptyMapIfNil(e.Data))
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (id, case_id, type, label, notes, risk_level, confidence_score, tags, source_attribution, data, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CaseID, string(e.Type), e.Label, e.Notes, string(e.RiskLevel),
		e.ConfidenceScore, string(tagsJSON), e.SourceAttribution, string(dataJSON),
		e.Version, e.CreatedAt.Format(timeFormat)); err != nil {
		return err
	}
	if err := appendActivity(ctx, tx, e.CaseID, model.ActivityEntityAdded, e.ID, e.Label, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx,
		`SELECT id, case_id, type, label, notes, risk_level, confidence_score, tags, source_attribution, data, version, created_at
		 FROM entities WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("entity %s not found", id)
	}
	return e, err
}

func (s *SQLiteStore) ListEntitiesByCase(ctx context.Context, caseID string) ([]*model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, type, label, notes, risk_level, confidence_score, tags, source_attribution, data, version, created_at
		 FROM entities WHERE case_id = ? ORDER BY created_at, rowid`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := []*model.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, id string, upd model.EntityUpdate) (*model.Entity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := scanEntity(tx.QueryRowContext(ctx,
		`SELECT id, case_id, type, label, notes, risk_level, confidence_score, tags, source_attribution, data, version, created_at
		 FROM entities WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("entity %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if upd.Version != nil && *upd.Version != e.Version {
		return nil, apperr.Conflictf("entity %s was modified concurrently (have version %d, got %d)", id, e.Version, *upd.Version)
	}

	if upd.Label != nil {
		e.Label = *upd.Label
	}
	if upd.Notes != nil {
		e.Notes = *upd.Notes
	}
	if upd.RiskLevel != nil {
		e.RiskLevel = *upd.RiskLevel
	}
	if upd.ConfidenceScore != nil {
		e.ConfidenceScore = *upd.ConfidenceScore
	}
	if upd.Tags != nil {
		e.Tags = *upd.Tags
	}
	if upd.SourceAttribution != nil {
		e.SourceAttribution = *upd.SourceAttribution
	}
	if upd.Data != nil {
		e.Data = *upd.Data
	}
	if err := model.ValidateEntity(e); err != nil {
		return nil, err
	}
	e.Version++

	tagsJSON, err := json.Marshal(emptyIfNil(e.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	dataJSON, err := json.Marshal(emptyMapIfNil(e.Data))
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET label = ?, notes = ?, risk_level = ?, confidence_score = ?, tags = ?, source_attribution = ?, data = ?, version = ?
		 WHERE id = ?`,
		e.Label, e.Notes, string(e.RiskLevel), e.ConfidenceScore, string(tagsJSON),
		e.SourceAttribution, string(dataJSON), e.Version, e.ID); err != nil {
		return nil, err
	}
	return e, tx.Commit()
}

// DeleteEntity removes an entity and, via foreign keys, every
// relationship touching it in the same transaction. Dangling endpoints
// are never left behind.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var caseID, label string
	err = tx.QueryRowContext(ctx, `SELECT case_id, label FROM entities WHERE id = ?`, id).Scan(&caseID, &label)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("entity %s not found", id)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := appendActivity(ctx, tx, caseID, model.ActivityEntityRemoved, id, label, now); err != nil {
		return err
	}
	return tx.Commit()
}

func scanEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var typ, risk, tagsJSON, dataJSON, createdAt string
	err := row.Scan(&e.ID, &e.CaseID, &typ, &e.Label, &e.Notes, &risk,
		&e.ConfidenceScore, &tagsJSON, &e.SourceAttribution, &dataJSON,
		&e.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Type = model.EntityType(typ)
	e.RiskLevel = model.RiskLevel(risk)
	_ = json.Unmarshal([]byte(tagsJSON), &e.Tags)
	_ = json.Unmarshal([]byte(dataJSON), &e.Data)
	e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &e, nil
}

// --- Relationships ---

// CreateRelationship inserts an edge after checking, inside one
// transaction, that both endpoints exist and belong to the same case.
func (s *SQLiteStore) CreateRelationship(ctx context.Context, r *model.EntityRelationship) error {
	if err := model.ValidateRelationship(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sourceCase, err := entityCase(ctx, tx, r.SourceEntityID)
	if err != nil {
		return err
	}
	targetCase, err := entityCase(ctx, tx, r.TargetEntityID)
	if err != nil {
		return err
	}
	if sourceCase != targetCase {
		return apperr.Conflictf("relationship endpoints belong to different cases")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entity_relationships (id, source_entity_id, target_entity_id, relationship_type, strength, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SourceEntityID, r.TargetEntityID, string(r.RelationshipType),
		r.Strength, r.Notes, r.CreatedAt.Format(timeFormat)); err != nil {
		return err
	}
	if err := appendActivity(ctx, tx, sourceCase, model.ActivityRelationshipAdded, r.ID,
		string(r.RelationshipType), now); err != nil {
		return err
	}
	return tx.Commit()
}

func entityCase(ctx context.Context, tx *sql.Tx, entityID string) (string, error) {
	var caseID string
	err := tx.QueryRowContext(ctx, `SELECT case_id FROM entities WHERE id = ?`, entityID).Scan(&caseID)
	if err == sql.ErrNoRows {
		return "", apperr.NotFoundf("entity %s not found", entityID)
	}
	return caseID, err
}

// ListRelationshipsByCase returns the edges whose endpoints are both
// entities of the case. Membership is computed as a join; relationships
// carry no case column of their own.
func (s *SQLiteStore) ListRelationshipsByCase(ctx context.Context, caseID string) ([]*model.EntityRelationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.source_entity_id, r.target_entity_id, r.relationship_type, r.strength, r.notes, r.created_at
		 FROM entity_relationships r
		 JOIN entities src ON src.id = r.source_entity_id
		 JOIN entities tgt ON tgt.id = r.target_entity_id
		 WHERE src.case_id = ? AND tgt.case_id = ?
		 ORDER BY r.created_at, r.rowid`, caseID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rels := []*model.EntityRelationship{}
	for rows.Next() {
		var r model.EntityRelationship
		var typ, createdAt string
		if err := rows.Scan(&r.ID, &r.SourceEntityID, &r.TargetEntityID, &typ,
			&r.Strength, &r.Notes, &createdAt); err != nil {
			return nil, err
		}
		r.RelationshipType = model.RelationshipType(typ)
		r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		rels = append(rels, &r)
	}
	return rels, rows.Err()
}

func (s *SQLiteStore) DeleteRelationship(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var caseID, relType string
	err = tx.QueryRowContext(ctx,
		`SELECT e.case_id, r.relationship_type
		 FROM entity_relationships r JOIN entities e ON e.id = r.source_entity_id
		 WHERE r.id = ?`, id).Scan(&caseID, &relType)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("relationship %s not found", id)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_relationships WHERE id = ?`, id); err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := appendActivity(ctx, tx, caseID, model.ActivityRelationshipRemoved, id, relType, now); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Search history ---

// RecordSearch appends a history row. The timestamp is always assigned
// here so the audit trail cannot be backdated by a client.
func (s *SQLiteStore) RecordSearch(ctx context.Context, h *model.SearchHistory) error {
	if !h.SearchType.Valid() {
		return apperr.Validationf("unknown search type %q", h.SearchType)
	}
	if strings.TrimSpace(h.SearchQuery) == "" {
		return apperr.Validationf("searchQuery is required")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (id, search_type, search_query, result_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		h.ID, string(h.SearchType), h.SearchQuery, h.ResultCount, h.CreatedAt.Format(timeFormat))
	return err
}

func (s *SQLiteStore) ListSearchHistory(ctx context.Context, f model.HistoryFilter) ([]*model.SearchHistory, error) {
	query := `SELECT id, search_type, search_query, result_count, created_at FROM search_history`
	var conds []string
	var args []interface{}
	if f.Type != "" {
		conds = append(conds, "search_type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(timeFormat))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []*model.SearchHistory{}
	for rows.Next() {
		var h model.SearchHistory
		var typ, createdAt string
		if err := rows.Scan(&h.ID, &typ, &h.SearchQuery, &h.ResultCount, &createdAt); err != nil {
			return nil, err
		}
		h.SearchType = model.SearchType(typ)
		h.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		history = append(history, &h)
	}
	return history, rows.Err()
}

// --- Provider configs ---

// CreateAPIConfig upserts on (category, providerName): re-adding a
// provider replaces its key and settings and reactivates it.
func (s *SQLiteStore) CreateAPIConfig(ctx context.Context, c *model.APIConfig) error {
	if err := model.ValidateAPIConfig(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.IsActive = true

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_configs (id, category, provider_name, api_key, base_url, quota_limit, requests_today, is_active, last_sync, error_log, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 1, NULL, '', ?)
		 ON CONFLICT (category, provider_name) DO UPDATE SET
		   api_key = excluded.api_key,
		   base_url = excluded.base_url,
		   quota_limit = excluded.quota_limit,
		   is_active = 1,
		   error_log = ''`,
		c.ID, string(c.Category), c.ProviderName, c.APIKey, c.BaseURL, c.QuotaLimit,
		c.CreatedAt.Format(timeFormat))
	if err != nil {
		return err
	}

	// Refresh from the stored row so an upsert returns the original id
	// and counters.
	stored, err := s.getConfigWhere(ctx, `category = ? AND provider_name = ?`, string(c.Category), c.ProviderName)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

func (s *SQLiteStore) GetAPIConfig(ctx context.Context, id string) (*model.APIConfig, error) {
	return s.getConfigWhere(ctx, `id = ?`, id)
}

func (s *SQLiteStore) getConfigWhere(ctx context.Context, where string, args ...interface{}) (*model.APIConfig, error) {
	c, err := scanConfig(s.db.QueryRowContext(ctx,
		`SELECT id, category, provider_name, api_key, base_url, quota_limit, requests_today, is_active, last_sync, error_log, created_at
		 FROM api_configs WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("api config not found")
	}
	return c, err
}

func (s *SQLiteStore) ListAPIConfigs(ctx context.Context) ([]*model.APIConfig, error) {
	return s.listConfigs(ctx,
		`SELECT id, category, provider_name, api_key, base_url, quota_limit, requests_today, is_active, last_sync, error_log, created_at
		 FROM api_configs ORDER BY category, provider_name`)
}

func (s *SQLiteStore) ListActiveConfigsByCategory(ctx context.Context, category model.SearchType) ([]*model.APIConfig, error) {
	return s.listConfigs(ctx,
		`SELECT id, category, provider_name, api_key, base_url, quota_limit, requests_today, is_active, last_sync, error_log, created_at
		 FROM api_configs WHERE category = ? AND is_active = 1 ORDER BY provider_name`, string(category))
}

func (s *SQLiteStore) listConfigs(ctx context.Context, query string, args ...interface{}) ([]*model.APIConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []*model.APIConfig{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (s *SQLiteStore) UpdateAPIConfig(ctx context.Context, id string, upd model.APIConfigUpdate) (*model.APIConfig, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := scanConfig(tx.QueryRowContext(ctx,
		`SELECT id, category, provider_name, api_key, base_url, quota_limit, requests_today, is_active, last_sync, error_log, created_at
		 FROM api_configs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("api config %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	if upd.IsActive != nil {
		c.IsActive = *upd.IsActive
	}
	if upd.BaseURL != nil {
		c.BaseURL = *upd.BaseURL
	}
	if upd.QuotaLimit != nil {
		if *upd.QuotaLimit < 0 {
			return nil, apperr.Validationf("quotaLimit must not be negative")
		}
		c.QuotaLimit = *upd.QuotaLimit
	}
	if upd.APIKey != nil {
		if strings.TrimSpace(*upd.APIKey) == "" {
			return nil, apperr.Validationf("apiKey must not be empty")
		}
		c.APIKey = *upd.APIKey
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE api_configs SET api_key = ?, base_url = ?, quota_limit = ?, is_active = ? WHERE id = ?`,
		c.APIKey, c.BaseURL, c.QuotaLimit, boolToInt(c.IsActive), c.ID); err != nil {
		return nil, err
	}
	return c, tx.Commit()
}

func (s *SQLiteStore) DeleteAPIConfig(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_configs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFoundf("api config %s not found", id)
	}
	return nil
}

// RecordUsage bumps the daily counter, resetting it when the stored
// lastSync falls on an earlier UTC calendar day than now.
func (s *SQLiteStore) RecordUsage(ctx context.Context, id string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var requestsToday int
	var lastSync sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT requests_today, last_sync FROM api_configs WHERE id = ?`, id).
		Scan(&requestsToday, &lastSync)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("api config %s not found", id)
	}
	if err != nil {
		return err
	}

	now = now.UTC()
	if lastSync.Valid {
		prev, _ := time.Parse(timeFormat, lastSync.String)
		py, pm, pd := prev.Date()
		ny, nm, nd := now.Date()
		if py != ny || pm != nm || pd != nd {
			requestsToday = 0
		}
	}
	requestsToday++

	if _, err := tx.ExecContext(ctx,
		`UPDATE api_configs SET requests_today = ?, last_sync = ? WHERE id = ?`,
		requestsToday, now.Format(timeFormat), id); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordSyncResult stores the outcome of a provider call. The message is
// whatever the caller deems safe to persist; keys must never reach here.
func (s *SQLiteStore) RecordSyncResult(ctx context.Context, id string, errMsg string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_configs SET error_log = ?, last_sync = ? WHERE id = ?`,
		errMsg, now.UTC().Format(timeFormat), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFoundf("api config %s not found", id)
	}
	return nil
}

func scanConfig(row scannable) (*model.APIConfig, error) {
	var c model.APIConfig
	var category, createdAt string
	var lastSync sql.NullString
	var isActive int
	err := row.Scan(&c.ID, &category, &c.ProviderName, &c.APIKey, &c.BaseURL,
		&c.QuotaLimit, &c.RequestsToday, &isActive, &lastSync, &c.ErrorLog, &createdAt)
	if err != nil {
		return nil, err
	}
	c.Category = model.SearchType(category)
	c.IsActive = isActive != 0
	if lastSync.Valid {
		t, _ := time.Parse(timeFormat, lastSync.String)
		c.LastSync = &t
	}
	c.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &c, nil
}

// --- Case timeline ---

func appendActivity(ctx context.Context, tx *sql.Tx, caseID, action, targetID, detail string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO case_activity (id, case_id, action, target_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), caseID, action, targetID, detail, now.Format(timeFormat))
	return err
}

func (s *SQLiteStore) ListActivityByCase(ctx context.Context, caseID string) ([]*model.CaseActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, action, target_id, detail, created_at
		 FROM case_activity WHERE case_id = ? ORDER BY created_at DESC, rowid DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activity := []*model.CaseActivity{}
	for rows.Next() {
		var a model.CaseActivity
		var createdAt string
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Action, &a.TargetID, &a.Detail, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		activity = append(activity, &a)
	}
	return activity, rows.Err()
}

// --- Idempotency keys ---

func (s *SQLiteStore) LookupIdempotencyKey(ctx context.Context, key string) (string, string, error) {
	var kind, resourceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT resource_kind, resource_id FROM idempotency_keys WHERE key = ?`, key).
		Scan(&kind, &resourceID)
	if err == sql.ErrNoRows {
		return "", "", apperr.NotFoundf("idempotency key not found")
	}
	return kind, resourceID, err
}

func (s *SQLiteStore) SaveIdempotencyKey(ctx context.Context, key, kind, resourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO idempotency_keys (key, resource_kind, resource_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		key, kind, resourceID, time.Now().UTC().Format(timeFormat))
	return err
}

// --- Dashboard aggregates ---

func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*model.Stats, error) {
	var st model.Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM cases WHERE status != ?`, string(model.CaseArchived)).
		Scan(&st.TotalCases); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entities`).
		Scan(&st.TotalEntities); err != nil {
		return nil, err
	}
	dayStart := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM search_history WHERE created_at >= ?`, dayStart.Format(timeFormat)).
		Scan(&st.TotalSearches); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entities e JOIN cases c ON c.id = e.case_id
		 WHERE e.risk_level IN ('high', 'critical') AND c.status != ?`, string(model.CaseArchived)).
		Scan(&st.ActiveAlerts); err != nil {
		return nil, err
	}
	return &st, nil
}

// --- Helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyMapIfNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
