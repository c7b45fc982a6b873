package snapshot

// ============================================================================
// Snapshot Manager test file
// Purpose: verify atomic snapshot writes, loading, version checks with error handling
// ============================================================================

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrefix(tail pkgraft.LogIndex, members ...pkgraft.NodeId) pkgraft.LogPrefix {
	return pkgraft.LogPrefix{
		Tail:     pkgraft.LogPosition{PrevTerm: 1, Index: tail},
		Config:   pkgraft.NewStableConfig(pkgraft.NewClusterMembers(members...)),
		Snapshot: []byte("state-bytes"),
	}
}

func TestNewManager(t *testing.T) {
	manager := NewManager("test_snapshot.json")
	assert.NotNil(t, manager)
	assert.Equal(t, "test_snapshot.json", manager.GetPath())
}

func TestWriteAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	original := testPrefix(100, "A", "B", "C")

	require.NoError(t, manager.Write(original))

	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, original.Tail, loaded.Tail)
	assert.Equal(t, original.Config, loaded.Config)
	assert.Equal(t, original.Snapshot, loaded.Snapshot)
}

func TestAtomicWrite(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	require.NoError(t, manager.Write(testPrefix(50, "A")))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := manager.Write(testPrefix(100, "A", "B"))
		assert.NoError(t, err)
	}()

	var loaded pkgraft.LogPrefix
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		var err error
		loaded, err = manager.Load()
		assert.NoError(t, err)
	}()

	wg.Wait()

	assert.True(t, loaded.Tail.Index == 50 || loaded.Tail.Index == 100,
		"Should load either old (50) or new (100) snapshot, got %d", loaded.Tail.Index)

	tmpPath := snapshotPath + ".tmp"
	_, err := os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err), "Temp file should not exist after write")
}

func TestExists(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	assert.False(t, manager.Exists())

	require.NoError(t, manager.Write(testPrefix(0)))
	assert.True(t, manager.Exists())
}

func TestFirstBoot(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "non_existent_snapshot.json")
	manager := NewManager(snapshotPath)

	loaded, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, pkgraft.LogPrefix{}, loaded)
}

func TestVersionMismatch(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	invalid := onDiskSnapshot{SchemaVer: 2, Prefix: testPrefix(0)}
	jsonBytes, err := json.MarshalIndent(invalid, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snapshotPath, jsonBytes, 0644))

	_, err = manager.Load()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestCorrupted(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	corruptedJSON := `{"schema_ver": 1, "prefix": {"tail": {`
	require.NoError(t, os.WriteFile(snapshotPath, []byte(corruptedJSON), 0644))

	_, err := manager.Load()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptedSnapshot)
}

func TestWriteFailure(t *testing.T) {
	tempDir := t.TempDir()

	readOnlyDir := filepath.Join(tempDir, "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0444))
	defer os.Chmod(readOnlyDir, 0755)

	snapshotPath := filepath.Join(readOnlyDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	err := manager.Write(testPrefix(0))
	assert.Error(t, err)
}

func TestLargeSnapshot(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	members := make([]pkgraft.NodeId, 0, 1000)
	for i := 0; i < 1000; i++ {
		members = append(members, pkgraft.NodeId(string(rune('a'+i%26))+string(rune('0'+i/26))))
	}
	large := testPrefix(10000, members...)

	start := time.Now()
	require.NoError(t, manager.Write(large))
	writeDuration := time.Since(start)
	t.Logf("Write duration for 1000-member config: %v", writeDuration)

	start = time.Now()
	loaded, err := manager.Load()
	require.NoError(t, err)
	loadDuration := time.Since(start)
	t.Logf("Load duration for 1000-member config: %v", loadDuration)

	assert.Equal(t, len(large.Config.New), len(loaded.Config.New))
	assert.Equal(t, large.Tail, loaded.Tail)

	assert.Less(t, writeDuration, 1*time.Second, "Write should complete in < 1s")
	assert.Less(t, loadDuration, 1*time.Second, "Load should complete in < 1s")
}

func TestConcurrentWrites(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	numGoroutines := 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(index int) {
			defer wg.Done()
			err := manager.Write(testPrefix(pkgraft.LogIndex(index), "A"))
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	loaded, err := manager.Load()
	require.NoError(t, err)
	assert.NotNil(t, loaded.Config.New)
}

func TestConcurrentReads(t *testing.T) {
	tempDir := t.TempDir()
	snapshotPath := filepath.Join(tempDir, "test_snapshot.json")
	manager := NewManager(snapshotPath)

	require.NoError(t, manager.Write(testPrefix(100, "A")))

	numGoroutines := 20
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			loaded, err := manager.Load()
			assert.NoError(t, err)
			assert.Equal(t, pkgraft.LogIndex(100), loaded.Tail.Index)
		}()
	}

	wg.Wait()
}

func BenchmarkWrite(b *testing.B) {
	tempDir := b.TempDir()
	snapshotPath := filepath.Join(tempDir, "benchmark_snapshot.json")
	manager := NewManager(snapshotPath)

	data := testPrefix(100, "A")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = manager.Write(data)
	}
}

func BenchmarkLoad(b *testing.B) {
	tempDir := b.TempDir()
	snapshotPath := filepath.Join(tempDir, "benchmark_snapshot.json")
	manager := NewManager(snapshotPath)

	_ = manager.Write(testPrefix(100, "A"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = manager.Load()
	}
}
