package domain

import (
	"context"
	"fmt"
)

type CreateConnectorParams struct {
	TenantID    string
	Credentials map[string]string
}

// ConnectorFactory builds a connector instance bound to one tenant's
// credentials.
type ConnectorFactory func(ctx context.Context, p CreateConnectorParams) (Connector, error)

// ConnectorSelector maps connector kinds to factories. Registration
// happens once at startup; an unknown kind is a construction-time
// error, never a nil connector.
type ConnectorSelector interface {
	Register(kind ConnectorKind, factory ConnectorFactory)
	Create(ctx context.Context, kind ConnectorKind, p CreateConnectorParams) (Connector, error)
	Kinds() []ConnectorKind
}

type connectorSelector struct {
	factoriesByKind map[ConnectorKind]ConnectorFactory
}

func NewConnectorSelector() ConnectorSelector {
	return &connectorSelector{
		factoriesByKind: make(map[ConnectorKind]ConnectorFactory),
	}
}

func (s *connectorSelector) Register(kind ConnectorKind, factory ConnectorFactory) {
	s.factoriesByKind[kind] = factory
}

func (s *connectorSelector) Create(ctx context.Context, kind ConnectorKind, p CreateConnectorParams) (Connector, error) {
	factory, ok := s.factoriesByKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotFound, kind)
	}

	return factory(ctx, p)
}

func (s *connectorSelector) Kinds() []ConnectorKind {
	kinds := make([]ConnectorKind, 0, len(s.factoriesByKind))
	for kind := range s.factoriesByKind {
		kinds = append(kinds, kind)
	}

	return kinds
}
