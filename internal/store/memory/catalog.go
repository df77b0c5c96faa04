package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

func templateID(t *models.OnboardingTemplate) string { return t.ID }

func documentID(d *models.KnowledgeDocument) string { return d.ID }

// ListTemplates returns all onboarding templates with steps sorted by order.
func (s *Store) ListTemplates(ctx context.Context) ([]*models.OnboardingTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.OnboardingTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		result = append(result, cloneTemplate(t))
	}
	return result, nil
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (*models.OnboardingTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexByID(s.templates, id, templateID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrTemplateNotFound, id)
	}
	return cloneTemplate(s.templates[idx]), nil
}

// CreateTemplate stores a template and its steps.
func (s *Store) CreateTemplate(ctx context.Context, tmpl *models.OnboardingTemplate) error {
	if err := store.ValidateTemplate(tmpl); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.templates = append(s.templates, cloneTemplate(tmpl))
	return nil
}

// UpdateTemplate replaces a template including its steps.
func (s *Store) UpdateTemplate(ctx context.Context, tmpl *models.OnboardingTemplate) error {
	if err := store.ValidateTemplate(tmpl); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.templates, tmpl.ID, templateID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrTemplateNotFound, tmpl.ID)
	}

	tmpl.CreatedAt = s.templates[idx].CreatedAt
	tmpl.UpdatedAt = s.now()
	s.prepareSteps(tmpl)

	s.templates[idx] = cloneTemplate(tmpl)
	return nil
}

// DeleteTemplate removes a template and its steps.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.templates, id, templateID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrTemplateNotFound, id)
	}
	s.templates = slices.Delete(s.templates, idx, idx+1)
	return nil
}

// prepareSteps must be called with the lock held.
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

// ListDocuments returns all knowledge documents.
func (s *Store) ListDocuments(ctx context.Context) ([]*models.KnowledgeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.KnowledgeDocument, 0, len(s.documents))
	for _, d := range s.documents {
		result = append(result, cloneDocument(d))
	}
	return result, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexByID(s.documents, id, documentID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	return cloneDocument(s.documents[idx]), nil
}

// CreateDocument stores a knowledge document.
func (s *Store) CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	if err := store.ValidateDocument(doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.documents = append(s.documents, cloneDocument(doc))
	return nil
}

// UpdateDocument replaces a document and refreshes UpdatedAt.
func (s *Store) UpdateDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	if err := store.ValidateDocument(doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.documents, doc.ID, documentID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, doc.ID)
	}

	doc.CreatedAt = s.documents[idx].CreatedAt
	doc.UpdatedAt = s.now()
	s.documents[idx] = cloneDocument(doc)
	return nil
}

// DeleteDocument removes a document.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.documents, id, documentID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	s.documents = slices.Delete(s.documents, idx, idx+1)
	return nil
}
