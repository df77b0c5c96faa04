package postgres

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

const (
	templateColumns = `id, name, department, description, is_active, created_at, updated_at`
	stepColumns     = `id, template_id, step_order, title, description, type, config, created_at`
	documentColumns = `id, title, content, category, tags, created_at, updated_at`
)

func scanTemplate(row rowScanner) (*models.OnboardingTemplate, error) {
	var t models.OnboardingTemplate
	if err := row.Scan(&t.ID, &t.Name, &t.Department, &t.Description, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Steps = []models.OnboardingStep{}
	return &t, nil
}

func scanStep(row rowScanner) (models.OnboardingStep, error) {
	var (
		step   models.OnboardingStep
		config []byte
	)
	err := row.Scan(&step.ID, &step.TemplateID, &step.Order, &step.Title, &step.Description, &step.Type, &config, &step.CreatedAt)
	step.Config = config
	return step, err
}

// ListTemplates returns all templates with their ordered steps.
func (s *Store) ListTemplates(ctx context.Context) ([]*models.OnboardingTemplate, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+templateColumns+` FROM onboarding_templates ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", mapPostgresError(err))
	}
	templates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.OnboardingTemplate, error) {
		return scanTemplate(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan templates: %w", err)
	}

	stepRows, err := s.pool.Query(ctx, `SELECT `+stepColumns+` FROM onboarding_steps ORDER BY template_id, step_order`)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", mapPostgresError(err))
	}
	steps, err := pgx.CollectRows(stepRows, func(row pgx.CollectableRow) (models.OnboardingStep, error) {
		return scanStep(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan steps: %w", err)
	}

	byID := make(map[string]*models.OnboardingTemplate, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}
	for _, step := range steps {
		if t, ok := byID[step.TemplateID]; ok {
			t.Steps = append(t.Steps, step)
		}
	}
	return templates, nil
}

// GetTemplate retrieves a template and its ordered steps.
func (s *Store) GetTemplate(ctx context.Context, id string) (*models.OnboardingTemplate, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	t, err := scanTemplate(s.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM onboarding_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrTemplateNotFound, id)
		}
		return nil, fmt.Errorf("failed to get template: %w", mapPostgresError(err))
	}

	rows, err := s.pool.Query(ctx, `SELECT `+stepColumns+` FROM onboarding_steps WHERE template_id = $1 ORDER BY step_order`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", mapPostgresError(err))
	}
	t.Steps, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OnboardingStep, error) {
		return scanStep(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan steps: %w", err)
	}
	return t, nil
}

// CreateTemplate inserts a template and its steps in one transaction.
func (s *Store) CreateTemplate(ctx context.Context, tmpl *models.OnboardingTemplate) error {
	if err := store.ValidateTemplate(tmpl); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if tmpl.ID == "" {
		tmpl.ID = newID()
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = s.now()
	}
	if tmpl.UpdatedAt.IsZero() {
		tmpl.UpdatedAt = tmpl.CreatedAt
	}
	s.prepareSteps(tmpl)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO onboarding_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tmpl.ID, tmpl.Name, tmpl.Department, tmpl.Description, tmpl.IsActive, tmpl.CreatedAt, tmpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", mapPostgresError(err))
	}

	if err := insertSteps(ctx, tx, tmpl.Steps); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit template: %w", mapPostgresError(err))
	}
	return nil
}

// UpdateTemplate replaces a template including its steps.
func (s *Store) UpdateTemplate(ctx context.Context, tmpl *models.OnboardingTemplate) error {
	if err := store.ValidateTemplate(tmpl); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	tmpl.UpdatedAt = s.now()
	err = tx.QueryRow(ctx, `
		UPDATE onboarding_templates
		SET name = $2, department = $3, description = $4, is_active = $5, updated_at = $6
		WHERE id = $1
		RETURNING created_at
	`, tmpl.ID, tmpl.Name, tmpl.Department, tmpl.Description, tmpl.IsActive, tmpl.UpdatedAt).Scan(&tmpl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrTemplateNotFound, tmpl.ID)
		}
		return fmt.Errorf("failed to update template: %w", mapPostgresError(err))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM onboarding_steps WHERE template_id = $1`, tmpl.ID); err != nil {
		return fmt.Errorf("failed to replace steps: %w", mapPostgresError(err))
	}
	s.prepareSteps(tmpl)
	if err := insertSteps(ctx, tx, tmpl.Steps); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit template: %w", mapPostgresError(err))
	}
	return nil
}

// DeleteTemplate removes a template; its steps cascade.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM onboarding_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrTemplateNotFound, id)
	}
	return nil
}

func (s *Store) prepareSteps(tmpl *models.OnboardingTemplate) {
	for i := range tmpl.Steps {
		step := &tmpl.Steps[i]
		if step.ID == "" {
			step.ID = newID()
		}
		step.TemplateID = tmpl.ID
		if step.CreatedAt.IsZero() {
			step.CreatedAt = tmpl.UpdatedAt
		}
	}
	slices.SortStableFunc(tmpl.Steps, func(a, b models.OnboardingStep) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

func insertSteps(ctx context.Context, tx pgx.Tx, steps []models.OnboardingStep) error {
	if len(steps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, step := range steps {
		batch.Queue(`
			INSERT INTO onboarding_steps (`+stepColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, step.ID, step.TemplateID, step.Order, step.Title, step.Description, string(step.Type), jsonParam(step.Config), step.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert steps: %w", mapPostgresError(err))
	}
	return nil
}

func scanDocument(row rowScanner) (*models.KnowledgeDocument, error) {
	var d models.KnowledgeDocument
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Category, &d.Tags, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return &d, nil
}

// ListDocuments returns all knowledge documents.
func (s *Store) ListDocuments(ctx context.Context) ([]*models.KnowledgeDocument, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+documentColumns+` FROM knowledge_documents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", mapPostgresError(err))
	}
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.KnowledgeDocument, error) {
		return scanDocument(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}
	return result, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	d, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM knowledge_documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("failed to get document: %w", mapPostgresError(err))
	}
	return d, nil
}

// CreateDocument stores a knowledge document.
func (s *Store) CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	if err := store.ValidateDocument(doc); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if doc.ID == "" {
		doc.ID = newID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO knowledge_documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.Title, doc.Content, doc.Category, doc.Tags, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", mapPostgresError(err))
	}
	return nil
}

// UpdateDocument replaces a document and refreshes UpdatedAt.
func (s *Store) UpdateDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	if err := store.ValidateDocument(doc); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	doc.UpdatedAt = s.now()
	err := s.pool.QueryRow(ctx, `
		UPDATE knowledge_documents
		SET title = $2, content = $3, category = $4, tags = $5, updated_at = $6
		WHERE id = $1
		RETURNING created_at
	`, doc.ID, doc.Title, doc.Content, doc.Category, doc.Tags, doc.UpdatedAt).Scan(&doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, doc.ID)
		}
		return fmt.Errorf("failed to update document: %w", mapPostgresError(err))
	}
	return nil
}

// DeleteDocument removes a document.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	return nil
}
