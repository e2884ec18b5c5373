package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PublisherMock stands in for the AMQP publisher in handler and telemetry tests.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// OnPublish expects one publish on routingKey whose event satisfies match.
func (m *PublisherMock) OnPublish(routingKey string, match any) *mock.Call {
	return m.On("Publish", mock.Anything, routingKey, mock.MatchedBy(match), mock.Anything)
}
