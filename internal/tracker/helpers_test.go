package tracker

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/notify"
	"github.com/joescharf/maint/internal/objstore"
)

// stepClock returns a time that advances one minute per call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type testEnv struct {
	store    *docstore.SQLStore
	fs       afero.Fs
	objects  *objstore.FSStorage
	notifier *recordingNotifier
	tracker  *Tracker
}

func newTestStore(t *testing.T) *docstore.SQLStore {
	t.Helper()
	clock := newStepClock()
	s, err := docstore.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), docstore.WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEnv(t *testing.T, wrap ...func(docstore.Store) docstore.Store) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newTestStore(t),
		fs:       afero.NewMemMapFs(),
		notifier: &recordingNotifier{},
	}
	env.objects = objstore.New(env.fs, "/files")

	var store docstore.Store = env.store
	for _, w := range wrap {
		store = w(store)
	}
	env.tracker = New(store, env.objects, Options{
		Notifier: env.notifier,
		Location: time.UTC,
		Limits:   Limits{MaxImages: 2, MaxComments: 50, MaxImageBytes: 1 << 20},
	})
	return env
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, p notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
	return n.err
}

func (n *recordingNotifier) tags() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, p := range n.payloads {
		out = append(out, p.Notification.Tag)
	}
	return out
}

// countingStore records every call made through it.
type countingStore struct {
	docstore.Store
	mu    sync.Mutex
	calls int
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *countingStore) List(ctx context.Context, c string) ([]docstore.Document, error) {
	s.hit()
	return s.Store.List(ctx, c)
}

func (s *countingStore) Get(ctx context.Context, c, id string) (*docstore.Document, error) {
	s.hit()
	return s.Store.Get(ctx, c, id)
}

func (s *countingStore) Create(ctx context.Context, c string, f docstore.Fields) (string, error) {
	s.hit()
	return s.Store.Create(ctx, c, f)
}

func (s *countingStore) Update(ctx context.Context, c, id string, f docstore.Fields) error {
	s.hit()
	return s.Store.Update(ctx, c, id, f)
}

func (s *countingStore) UpdateIf(ctx context.Context, c, id string, v int64, f docstore.Fields) error {
	s.hit()
	return s.Store.UpdateIf(ctx, c, id, v, f)
}

func (s *countingStore) Delete(ctx context.Context, c, id string) error {
	s.hit()
	return s.Store.Delete(ctx, c, id)
}

// hookStore lets a test intercept updates.
type hookStore struct {
	docstore.Store
	beforeUpdate   func(collection, id string) error
	beforeUpdateIf func(collection, id string)
}

func (s *hookStore) Update(ctx context.Context, c, id string, f docstore.Fields) error {
	if s.beforeUpdate != nil {
		if err := s.beforeUpdate(c, id); err != nil {
			return err
		}
	}
	return s.Store.Update(ctx, c, id, f)
}

func (s *hookStore) UpdateIf(ctx context.Context, c, id string, v int64, f docstore.Fields) error {
	if s.beforeUpdateIf != nil {
		s.beforeUpdateIf(c, id)
	}
	return s.Store.UpdateIf(ctx, c, id, v, f)
}

func pngUpload(t *testing.T, name string) Upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return Upload{Filename: name, Data: buf.Bytes()}
}
