package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/tjfontaine/nurseiq/internal/domain"
)

// StubGenerator is a scripted domain.TextGenerator.
type StubGenerator struct {
	mu sync.Mutex

	// Reply is returned when Err is nil.
	Reply string
	Err   error

	// Requests records every request received.
	Requests []*domain.CompletionRequest
}

func (s *StubGenerator) Generate(ctx context.Context, req *domain.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// Calls returns the number of requests received.
func (s *StubGenerator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// StubLabels is a domain.LabelSource backed by maps keyed on lower-cased
// names. Names absent from a map return a not_found CollaboratorError.
type StubLabels struct {
	mu sync.Mutex

	Generic map[string]*domain.DrugLabel
	Brand   map[string]*domain.DrugLabel

	// Queries records "generic:<name>" and "brand:<name>" lookups in order.
	Queries []string
}

func (s *StubLabels) SearchGeneric(ctx context.Context, name string) (*domain.DrugLabel, error) {
	return s.lookup("generic", s.Generic, name)
}

func (s *StubLabels) SearchBrand(ctx context.Context, name string) (*domain.DrugLabel, error) {
	return s.lookup("brand", s.Brand, name)
}

func (s *StubLabels) lookup(kind string, labels map[string]*domain.DrugLabel, name string) (*domain.DrugLabel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, kind+":"+name)
	if label, ok := labels[strings.ToLower(name)]; ok {
		return label, nil
	}
	return nil, domain.NewCollaboratorError("stub", domain.ErrorTypeNotFound, "no label for "+name)
}
