package testutils

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tech-arch1tect/gatekeep/services/notify"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendVerification(ctx context.Context, to notify.Recipient, link string, expires time.Time) error {
	args := m.Called(ctx, to, link, expires)
	return args.Error(0)
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, to notify.Recipient, link string, expires time.Time) error {
	args := m.Called(ctx, to, link, expires)
	return args.Error(0)
}

func (m *MockNotifier) SendPasswordChanged(ctx context.Context, to notify.Recipient) error {
	args := m.Called(ctx, to)
	return args.Error(0)
}

// LastLink returns the link argument of the most recent call to method.
func (m *MockNotifier) LastLink(method string) string {
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return m.Calls[i].Arguments.String(2)
		}
	}
	return ""
}

type MockBreachChecker struct {
	mock.Mock
}

func (m *MockBreachChecker) Count(ctx context.Context, password string) (int, error) {
	args := m.Called(ctx, password)
	return args.Int(0), args.Error(1)
}
