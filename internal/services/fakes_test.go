package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/NathnaelYimer/historical-bill/internal/gcp"
)

// fakeObjectStore is an in-memory ObjectStore recording every mutation.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
	deletes []string
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[bucket+"/"+key] = data
	f.puts = append(f.puts, key)
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return data, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeObjectStore) ListPrefix(_ context.Context, bucket, prefix string) ([]gcp.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []gcp.ObjectInfo
	for name := range f.objects {
		if strings.HasPrefix(name, bucket+"/"+prefix) {
			infos = append(infos, gcp.ObjectInfo{Key: strings.TrimPrefix(name, bucket+"/")})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (f *fakeObjectStore) Latest(_ context.Context, bucket, prefix string) (string, error) {
	infos, _ := f.ListPrefix(context.Background(), bucket, prefix)
	if len(infos) == 0 {
		return "", nil
	}
	return infos[len(infos)-1].Key, nil
}

// fakeLedger captures run documents and updates.
type fakeLedger struct {
	records []any
	updates []map[string]any
}

func (f *fakeLedger) Record(_ context.Context, doc any) string {
	f.records = append(f.records, doc)
	return "run-1"
}

func (f *fakeLedger) Update(_ context.Context, _ string, fields map[string]any) {
	f.updates = append(f.updates, fields)
}

// fakeTrigger records workflow arguments.
type fakeTrigger struct {
	arguments []any
	err       error
}

func (f *fakeTrigger) Trigger(_ context.Context, argument any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.arguments = append(f.arguments, argument)
	return "executions/fake", nil
}

// fakeOCR scripts the async job lifecycle: pollsUntilDone poll calls return
// not-done before the job completes.
type fakeOCR struct {
	startErr       error
	pollErr        error
	pollsUntilDone int
	pollCount      int
	text           string
	started        []string
	collected      int
}

func (f *fakeOCR) StartTextDetection(_ context.Context, _, inputKey, _ string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, inputKey)
	return "job-" + inputKey, nil
}

func (f *fakeOCR) PollTextDetection(_ context.Context, _ string) (bool, error) {
	if f.pollErr != nil {
		return false, f.pollErr
	}
	f.pollCount++
	return f.pollCount > f.pollsUntilDone, nil
}

func (f *fakeOCR) CollectText(_ context.Context, _, _ string) (string, error) {
	f.collected++
	return f.text, nil
}

// fakeDB records rows and can fail a scripted number of calls per method.
type fakeDB struct {
	upserts        []map[string]any
	upsertErr      error
	writes         []map[string]any
	writeFailures  int
	writeAttempts  int
	insertOrUpdate error
}

func (f *fakeDB) Upsert(_ context.Context, _, _ string, row map[string]any, _ []string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, row)
	return nil
}

func (f *fakeDB) InsertOrUpdate(_ context.Context, _, _ string, row map[string]any, _ string) error {
	f.writeAttempts++
	if f.writeAttempts <= f.writeFailures {
		return errors.New("deadlock detected")
	}
	if f.insertOrUpdate != nil {
		return f.insertOrUpdate
	}
	f.writes = append(f.writes, row)
	return nil
}
