// Package mock is a test double for blobstore.Store, using the
// configurable-func-field style used elsewhere in this codebase's mocks.
package mock

import "context"

type MockStore struct {
	PutFileFunc func(ctx context.Context, key, localPath, contentType string) (string, error)
	DeleteFunc  func(ctx context.Context, key string) error

	PutFileCalls []PutFileCall
	DeleteCalls  []string
}

type PutFileCall struct {
	Key, LocalPath, ContentType string
}

func (m *MockStore) PutFile(ctx context.Context, key, localPath, contentType string) (string, error) {
	m.PutFileCalls = append(m.PutFileCalls, PutFileCall{Key: key, LocalPath: localPath, ContentType: contentType})
	if m.PutFileFunc != nil {
		return m.PutFileFunc(ctx, key, localPath, contentType)
	}
	return "https://blobs.example.com/" + key, nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.DeleteCalls = append(m.DeleteCalls, key)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}
