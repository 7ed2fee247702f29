package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemWarningsService_AddAndGet(t *testing.T) {
	svc := NewSystemWarningsService()

	id := svc.AddWarning(WarningCategoryToolHealth, "Tool server unreachable", "connection refused", "toolserver")
	assert.NotEmpty(t, id)

	warnings := svc.GetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningCategoryToolHealth, warnings[0].Category)
	assert.Equal(t, "Tool server unreachable", warnings[0].Message)
	assert.Equal(t, "connection refused", warnings[0].Details)
	assert.Equal(t, "toolserver", warnings[0].Source)
	assert.False(t, warnings[0].CreatedAt.IsZero())
}

func TestSystemWarningsService_ClearBySource(t *testing.T) {
	svc := NewSystemWarningsService()

	svc.AddWarning(WarningCategoryToolHealth, "Tool server unreachable", "", "toolserver")
	svc.AddWarning(WarningCategoryLLMHealth, "LLM not configured", "", "openai")

	assert.Len(t, svc.GetWarnings(), 2)

	// Clear the tool server warning
	cleared := svc.ClearBySource(WarningCategoryToolHealth, "toolserver")
	assert.True(t, cleared)
	assert.Len(t, svc.GetWarnings(), 1)
	assert.Equal(t, "openai", svc.GetWarnings()[0].Source)

	// Clear non-existent
	cleared = svc.ClearBySource(WarningCategoryToolHealth, "nonexistent")
	assert.False(t, cleared)
}

func TestSystemWarningsService_ReplacesDuplicate(t *testing.T) {
	svc := NewSystemWarningsService()

	svc.AddWarning(WarningCategoryToolHealth, "First error", "err1", "toolserver")
	svc.AddWarning(WarningCategoryToolHealth, "Second error", "err2", "toolserver")

	// Should have replaced the first warning, not added a second
	warnings := svc.GetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Second error", warnings[0].Message)
	assert.Equal(t, "err2", warnings[0].Details)
}

func TestSystemWarningsService_SameCategoryDifferentSources(t *testing.T) {
	svc := NewSystemWarningsService()

	svc.AddWarning(WarningCategoryMemoryHealth, "Vector query failing", "", "historian")
	svc.AddWarning(WarningCategoryMemoryHealth, "Append failing", "", "engine")

	// Different sources under the same category coexist
	assert.Len(t, svc.GetWarnings(), 2)
}

func TestSystemWarningsService_Empty(t *testing.T) {
	svc := NewSystemWarningsService()
	assert.Empty(t, svc.GetWarnings())
}

func TestSystemWarningsService_ThreadSafety(t *testing.T) {
	svc := NewSystemWarningsService()
	var wg sync.WaitGroup

	// Concurrent adds
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.AddWarning("test", "msg", "", "")
		}()
	}

	// Concurrent reads
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.GetWarnings()
		}()
	}

	wg.Wait()
	// Just ensure no panics; exact count doesn't matter for concurrency test
	assert.NotNil(t, svc.GetWarnings())
}
