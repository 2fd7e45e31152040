package session

import (
	"context"
	"time"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/credentials"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/http/client"
	"github.com/stretchr/testify/mock"
)

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Login(ctx context.Context, creds Credentials) ([]credentials.Cookie, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]credentials.Cookie), args.Error(1)
}

func (m *MockSession) ReadTokens(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockSession) Close() error {
	return m.Called().Error(0)
}

type MockDoer struct {
	mock.Mock
}

// Do runs req.BeforeSend like the real client; a rejected request is not recorded.
func (m *MockDoer) Do(ctx context.Context, req *client.Request) (*client.Response, error) {
	if req.BeforeSend != nil {
		if err := req.BeforeSend(); err != nil {
			return nil, err
		}
	}
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Response), args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Persist(ctx context.Context, result *Result) error {
	return m.Called(ctx, result).Error(0)
}

type stageRecorder struct {
	stages []string
}

func (r *stageRecorder) ObserveStage(stage string, _ time.Duration) {
	r.stages = append(r.stages, stage)
}
